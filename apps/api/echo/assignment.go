package echoapi

import (
	"mime/multipart"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/assignment"
	"github.com/odinschool/odin/core/user"
)

const (
	assignmentIDParam = "assignmentID"
	fileParam         = "file"
	assignmentsPath   = "/assignments"
)

type assignmentApi struct {
	svc      *assignment.Service
	usrSvc   *user.Service
	logger   core.Logger
	validate *validator.Validate
}

func (s *Server) registerAssignmentAPI(jwt echo.MiddlewareFunc) {
	api := assignmentApi{
		svc:      s.deps.AssignmentSvc,
		usrSvc:   s.deps.UserSvc,
		logger:   s.deps.Logger,
		validate: s.deps.Validate,
	}
	teacherOnly := s.requireRoles(user.RoleTeacher)

	ag := s.app.Group(assignmentsPath, jwt)
	ag.GET("", api.list, s.requireRoles(user.RoleTeacher, user.RoleStudent))
	ag.GET("/detail", api.detail, teacherOnly)
	ag.POST("/detail", api.detail, teacherOnly)
	ag.GET("/create-assignment", api.form, teacherOnly)
	ag.POST("/create-assignment", api.create, teacherOnly)
	ag.POST("/submit", api.submit, s.requireRoles(user.RoleStudent))
	ag.POST("/grade", api.grade, teacherOnly)
}

// Handlers

func (api *assignmentApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	if usr.IsTeacher() {
		assignments, err := api.svc.ListForTeacher(reqCtx, usr)
		if err != nil {
			return errors.Wrap(err, "listing teacher assignments")
		}
		return ctx.JSON(http.StatusOK, assignments)
	}

	assignments, err := api.svc.ListForStudent(reqCtx, usr)
	if err != nil {
		return errors.Wrap(err, "listing student assignments")
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *assignmentApi) detail(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	detail, err := api.svc.Detail(ctx.Request().Context(), usr, ctx.FormValue(assignmentIDParam))
	if err != nil {
		return errors.Wrap(err, "getting assignment detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *assignmentApi) form(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	form, err := api.svc.Form(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting assignment form")
	}
	return ctx.JSON(http.StatusOK, form)
}

func (api *assignmentApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data assignment.NewAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	upload, closeFn, err := formUpload(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err = api.svc.Create(ctx.Request().Context(), usr, data, upload, api.validate); err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	assignmentEventsTotal.WithLabelValues(eventCreated).Inc()
	return ctx.Redirect(http.StatusSeeOther, assignmentsPath)
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	upload, closeFn, err := formUpload(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	take, err := api.svc.Submit(ctx.Request().Context(), usr, ctx.FormValue(assignmentIDParam), upload)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	assignmentEventsTotal.WithLabelValues(eventSubmitted).Inc()
	return ctx.JSON(http.StatusOK, take)
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data assignment.GradeTake
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeTake")
	}

	take, err := api.svc.Grade(ctx.Request().Context(), usr, data, api.validate)
	if err != nil {
		return errors.Wrap(err, "grading assignment")
	}
	assignmentEventsTotal.WithLabelValues(eventGraded).Inc()
	gradeHistogram.Observe(float64(take.Grade.Int))
	return ctx.JSON(http.StatusOK, take)
}

// formUpload opens the file of the multipart request, if any.
// A missing file yields a nil Upload; the caller must always call closeFn.
func formUpload(ctx echo.Context) (*assignment.Upload, func(), error) {
	noop := func() {}

	fh, err := ctx.FormFile(fileParam)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return nil, noop, nil
		}
		return nil, noop, errors.Wrap(err, "reading uploaded file")
	}

	var file multipart.File
	if file, err = fh.Open(); err != nil {
		return nil, noop, errors.Wrap(err, "opening uploaded file")
	}
	return &assignment.Upload{Filename: fh.Filename, Content: file}, func() { _ = file.Close() }, nil
}
