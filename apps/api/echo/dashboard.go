package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/dashboard"
	"github.com/cwarwicker/elbp/core/user"
)

type dashboardApi struct {
	svc      *dashboard.Service
	users    *user.Service
	validate *validator.Validate
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *dashboard.Service, validate *validator.Validate) {
	api := dashboardApi{
		svc:      svc,
		users:    users,
		validate: validate,
	}

	g.GET("/students/:id", api.view, jwt)
	g.POST("/ajax", api.ajax, jwt)
}

func (api *dashboardApi) view(ctx echo.Context) error {
	studentID, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	courseID, err := int64Query(ctx, "course")
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	view, err := api.svc.View(ctx.Request().Context(), usr, studentID, courseID)
	if err != nil {
		return errors.Wrap(err, "rendering dashboard")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *dashboardApi) ajax(ctx echo.Context) error {
	var req dashboard.Request
	if err := bindJSON(ctx, &req, "request"); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	resp, err := api.svc.Ajax(ctx.Request().Context(), api.validate, usr, req)
	if err != nil {
		return errors.Wrapf(err, "%s: %s", req.Plugin, req.Action)
	}
	return ctx.JSON(http.StatusOK, resp)
}
