package echoapi

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/user"
)

// configView is one tab of the admin configuration page.
type configView interface {
	// configCaps are required to see or submit the view.
	configCaps() []permission.Capability
	configData(ctx echo.Context) (interface{}, error)
	// configSubmit handles a POST of the view's form and writes the response.
	configSubmit(ctx echo.Context) error
}

type configViews map[string]configView

type configApi struct {
	users *user.Service
	views configViews
}

func registerConfigAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, views configViews) {
	api := configApi{users: users, views: views}

	cg := g.Group("/config", jwt)
	cg.GET("", api.retrieve)
	cg.POST("", api.submit)
	cg.GET("/views", api.list)
}

func (api *configApi) view(ctx echo.Context) (configView, error) {
	name := ctx.QueryParam("view")
	view, ok := api.views[name]
	if !ok {
		err := errors.Errorf("unknown view %q", name)
		return nil, core.NewValidationError(err, core.FieldError{Field: "view", Error: err.Error()})
	}

	_, caps, err := roleCaps(ctx, api.users)
	if err != nil {
		return nil, err
	}
	if !caps.Has(view.configCaps()...) {
		return nil, errHttpForbidden
	}
	return view, nil
}

func (api *configApi) retrieve(ctx echo.Context) error {
	view, err := api.view(ctx)
	if err != nil {
		return err
	}
	data, err := view.configData(ctx)
	if err != nil {
		return errors.Wrapf(err, "loading %s view", ctx.QueryParam("view"))
	}
	return ctx.JSON(http.StatusOK, data)
}

func (api *configApi) submit(ctx echo.Context) error {
	view, err := api.view(ctx)
	if err != nil {
		return err
	}
	return view.configSubmit(ctx)
}

// list returns the views the context user may open.
func (api *configApi) list(ctx echo.Context) error {
	_, caps, err := roleCaps(ctx, api.users)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(api.views))
	for name, view := range api.views {
		if caps.Has(view.configCaps()...) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return ctx.JSON(http.StatusOK, names)
}
