package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/layout"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/user"
)

type layoutApi struct {
	svc      *layout.Service
	validate *validator.Validate
}

func registerLayoutAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *layout.Service, validate *validator.Validate) *layoutApi {
	api := &layoutApi{svc: svc, validate: validate}
	manage := capMiddleware(users, permission.CapManageSettings)

	lg := g.Group("/layouts", jwt)
	lg.GET("", api.list)
	lg.PUT("", api.save, manage)
	lg.GET("/default", api.defaultLayout)
	lg.GET("/:id", api.retrieve)
	lg.DELETE("/:id", api.destroy, manage)
	return api
}

func (api *layoutApi) layouts(ctx echo.Context) ([]layout.Layout, error) {
	layouts, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return nil, errors.Wrap(err, "listing layouts")
	}
	if layouts == nil {
		layouts = []layout.Layout{}
	}
	return layouts, nil
}

func (api *layoutApi) list(ctx echo.Context) error {
	layouts, err := api.layouts(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, layouts)
}

// save replaces the whole set of layouts with the submitted forms.
func (api *layoutApi) save(ctx echo.Context) error {
	var forms []layout.Form
	if err := bindJSON(ctx, &forms, "layouts"); err != nil {
		return err
	}
	layouts, err := api.svc.SaveAll(ctx.Request().Context(), api.validate, forms)
	if err != nil {
		return errors.Wrap(err, "saving layouts")
	}
	return ctx.JSON(http.StatusOK, layouts)
}

func (api *layoutApi) defaultLayout(ctx echo.Context) error {
	l, err := api.svc.Default(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting default layout")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *layoutApi) retrieve(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	l, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting layout")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *layoutApi) destroy(ctx echo.Context) error {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting layout")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// config view

func (api *layoutApi) configCaps() []permission.Capability {
	return []permission.Capability{permission.CapManageSettings}
}

func (api *layoutApi) configData(ctx echo.Context) (interface{}, error) {
	return api.layouts(ctx)
}

func (api *layoutApi) configSubmit(ctx echo.Context) error {
	return api.save(ctx)
}
