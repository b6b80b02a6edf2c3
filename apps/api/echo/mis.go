package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/mis"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/user"
)

type misApi struct {
	svc      *mis.Service
	validate *validator.Validate
}

func registerMISAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *mis.Service, validate *validator.Validate) *misApi {
	api := &misApi{svc: svc, validate: validate}

	mg := g.Group("/mis", jwt, capMiddleware(users, permission.CapMIS))
	mg.GET("", api.list)
	mg.POST("", api.create)

	dg := mg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.POST("/enable", api.enable)
	dg.POST("/disable", api.disable)
	dg.POST("/test", api.test)
	dg.GET("/environment", api.environment)
	return api
}

type ConnectionsResponse struct {
	Connections []mis.Connection `json:"connections"`
	Drivers     []string         `json:"drivers"`
}

func (api *misApi) overview(ctx echo.Context) (ConnectionsResponse, error) {
	conns, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return ConnectionsResponse{}, errors.Wrap(err, "listing connections")
	}
	if conns == nil {
		conns = []mis.Connection{}
	}
	return ConnectionsResponse{Connections: conns, Drivers: api.svc.Drivers()}, nil
}

func (api *misApi) list(ctx echo.Context) error {
	resp, err := api.overview(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *misApi) create(ctx echo.Context) error {
	var data mis.NewConnection
	if err := bindJSON(ctx, &data, "connection"); err != nil {
		return err
	}
	conn, err := api.svc.Create(ctx.Request().Context(), api.validate, data)
	if err != nil {
		return errors.Wrap(err, "creating connection")
	}
	return ctx.JSON(http.StatusCreated, conn)
}

func (api *misApi) retrieve(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	conn, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting connection")
	}
	return ctx.JSON(http.StatusOK, conn)
}

func (api *misApi) destroy(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting connection")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *misApi) setEnabled(ctx echo.Context, enabled bool) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.SetEnabled(ctx.Request().Context(), id, enabled); err != nil {
		return errors.Wrap(err, "updating connection")
	}
	return api.retrieve(ctx)
}

func (api *misApi) enable(ctx echo.Context) error {
	return api.setEnabled(ctx, true)
}

func (api *misApi) disable(ctx echo.Context) error {
	return api.setEnabled(ctx, false)
}

func (api *misApi) test(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Test(ctx.Request().Context(), id); err != nil {
		return unreachable(err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "connection ok"})
}

func (api *misApi) environment(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	tables, err := api.svc.Environment(ctx.Request().Context(), id)
	if err != nil {
		return unreachable(err)
	}
	if tables == nil {
		tables = []mis.Table{}
	}
	return ctx.JSON(http.StatusOK, tables)
}

// unreachable reports a failure to reach the remote database as a 422.
func unreachable(err error) error {
	if core.IsNotFound(err) {
		return err
	}
	return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
}

// config view

func (api *misApi) configCaps() []permission.Capability {
	return []permission.Capability{permission.CapMIS}
}

func (api *misApi) configData(ctx echo.Context) (interface{}, error) {
	return api.overview(ctx)
}

func (api *misApi) configSubmit(ctx echo.Context) error {
	return api.create(ctx)
}
