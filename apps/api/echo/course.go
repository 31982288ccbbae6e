package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core/course"
	"github.com/odinschool/odin/core/user"
)

type courseApi struct {
	svc      *course.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func (s *Server) registerCourseAPI(jwt echo.MiddlewareFunc) {
	api := courseApi{
		svc:      s.deps.CourseSvc,
		usrSvc:   s.deps.UserSvc,
		validate: s.deps.Validate,
	}

	cg := s.app.Group("/courses", jwt)
	cg.GET("", api.list)
	cg.POST("", api.create, s.requireRoles(user.RoleTeacher))
	cg.POST("/:cid/enroll", api.enroll, s.requireRoles(user.RoleStudent, user.RoleTeacher))
	cg.GET("/:cid/members", api.members, s.requireRoles(user.RoleTeacher, user.RoleAdmin))
}

// Handlers

func (api *courseApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	courses, err := api.svc.List(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err = api.svc.Enroll(ctx.Request().Context(), usr, ctx.Param("cid")); err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Enrolled in " + ctx.Param("cid") + "."})
}

// members lists the members of a course to the admins and the teachers of the course.
func (api *courseApi) members(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	cid := ctx.Param("cid")

	if !usr.IsAdmin() {
		engaged, err := api.svc.IsEngaged(reqCtx, usr, cid)
		if err != nil {
			return errors.Wrap(err, "checking engagement")
		}
		if !engaged {
			return course.ErrNotFound
		}
	}

	members, err := api.svc.Members(reqCtx, cid)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	return ctx.JSON(http.StatusOK, members)
}
