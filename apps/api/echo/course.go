package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/course"
	"github.com/cwarwicker/elbp/core/user"
)

type courseApi struct {
	svc      *course.Service
	users    *user.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *course.Service, validate *validator.Validate) {
	api := courseApi{
		svc:      svc,
		users:    users,
		validate: validate,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware(users))
	cg.GET("/mine", api.mine)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy, adminMiddleware(users))
	dg.GET("/enrolments", api.enrolments, adminMiddleware(users))
	dg.POST("/enrolments", api.enrol, adminMiddleware(users))
	dg.DELETE("/enrolments/:user", api.unenrol, adminMiddleware(users))
}

func (api *courseApi) query(ctx echo.Context) error {
	page, err := api.svc.Query(ctx.Request().Context(), ctx.QueryParam("search"), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := bindJSON(ctx, &data, "course"); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) mine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	courses, err := api.svc.UserCourses(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing user courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	crs, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) enrolments(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	enrs, err := api.svc.Enrolments(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "listing enrolments")
	}
	if enrs == nil {
		enrs = []course.Enrolment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *courseApi) enrol(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	var data course.NewEnrolment
	if err = bindJSON(ctx, &data, "enrolment"); err != nil {
		return err
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	enr, err := api.svc.Enrol(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "enrolling user")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) unenrol(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	userID, err := int64Param(ctx, "user")
	if err != nil {
		return err
	}
	if err = api.svc.Unenrol(ctx.Request().Context(), id, userID, ctx.QueryParam("role")); err != nil {
		return errors.Wrap(err, "unenrolling user")
	}
	return ctx.NoContent(http.StatusNoContent)
}
