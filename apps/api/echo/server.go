package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/assignment"
	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
	"github.com/odinschool/odin/storage/uploads"
)

type (
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		Audit         core.AuditLogger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       *user.Service
		CourseSvc     *course.Service
		AssignmentSvc *assignment.Service
	}

	Server struct {
		deps         ServerDeps
		app          *echo.Echo
		jwtConfig    middleware.JWTConfig
		shutdown     chan os.Signal
		serverErrors chan error
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:         deps,
		app:          echo.New(),
		jwtConfig:    newJWTConfig(deps.Conf),
		shutdown:     make(chan os.Signal, 1),
		serverErrors: make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = conf.TestMode
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if conf.Uploads.Engine != uploads.EngineB2 {
		s.app.Static(conf.Uploads.URLPrefix, conf.Uploads.Dir)
	}

	jwt := authMiddleware(s.jwtConfig, s.deps.Audit)
	s.registerUserAPI(jwt)
	s.registerCourseAPI(jwt)
	s.registerAssignmentAPI(jwt)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.serverErrors <- err
	}
}

// Shutdown gracefully shuts down the server, waiting for the active requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) Errors() <-chan error {
	return s.serverErrors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the process to shut the server down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
