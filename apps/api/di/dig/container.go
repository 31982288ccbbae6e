package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/odinschool/odin/apps/api/echo"
	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/assignment"
	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
	emailsvc "github.com/odinschool/odin/services/email"
	logsvc "github.com/odinschool/odin/services/logger"
	"github.com/odinschool/odin/storage/database"
	"github.com/odinschool/odin/storage/database/sqlxrepos"
	"github.com/odinschool/odin/storage/uploads"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Audit         core.AuditLogger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       *user.Service
	CourseSvc     *course.Service
	AssignmentSvc *assignment.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newFileStore(conf *core.Config) (assignment.FileStore, error) {
	return uploads.NewFileStore(context.Background(), conf)
}

// newSecurityLogger writes the audit trail to conf.Security.AuditLogFile until it is closed.
func newSecurityLogger(conf *core.Config, logger core.Logger) (*logsvc.SecurityLogger, error) {
	f, err := logsvc.OpenAuditFile(conf)
	if err != nil {
		return nil, err
	}
	return logsvc.NewSecurityLogger(f, logger), nil
}

func newAuditLogger(l *logsvc.SecurityLogger) core.AuditLogger {
	return l
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Audit:         p.Audit,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		AssignmentSvc: p.AssignmentSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newFileStore))
	must(c.Provide(newSecurityLogger))
	must(c.Provide(newAuditLogger))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewCourseRepository))
	must(c.Provide(sqlxrepos.NewAssignmentRepository))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(assignment.NewService))
	must(c.Provide(newServer))

	return c
}

// Visualize writes the dependency graph of c, in DOT format, to path.
func Visualize(c *dig.Container, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating graph file")
	}
	defer func() { _ = f.Close() }()
	return errors.Wrap(dig.Visualize(c, f), "visualizing container")
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
