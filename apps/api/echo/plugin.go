package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/user"
)

type pluginApi struct {
	mgr *plugin.Manager
}

func registerPluginAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, mgr *plugin.Manager) *pluginApi {
	api := &pluginApi{mgr: mgr}

	pg := g.Group("/plugins", jwt, capMiddleware(users, permission.CapManagePlugins))
	pg.GET("", api.list)
	pg.POST("", api.install)

	dg := pg.Group("/:name")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.uninstall)
	dg.POST("/enable", api.enable)
	dg.POST("/disable", api.disable)
	dg.PUT("/order", api.order)
	dg.POST("/upgrade", api.upgrade)
	dg.POST("/rollback", api.rollback)
	return api
}

type (
	PluginsResponse struct {
		Installed []plugin.Registration `json:"installed"`
		// Available are registered plugins not installed yet.
		Available []string `json:"available"`
	}

	InstallRequest struct {
		Name string `json:"name"`
	}

	OrderRequest struct {
		Ordernum int `json:"ordernum"`
	}

	RollbackRequest struct {
		Version int `json:"version"`
	}

	MigratedResponse struct {
		Registration plugin.Registration `json:"registration"`
		Applied      int                 `json:"applied"`
	}
)

func (api *pluginApi) overview(ctx echo.Context) (PluginsResponse, error) {
	regs, err := api.mgr.List(ctx.Request().Context(), false)
	if err != nil {
		return PluginsResponse{}, errors.Wrap(err, "listing plugins")
	}
	installed := make(map[string]bool, len(regs))
	for _, reg := range regs {
		installed[reg.Name] = true
	}

	resp := PluginsResponse{Installed: regs, Available: []string{}}
	if resp.Installed == nil {
		resp.Installed = []plugin.Registration{}
	}
	for _, name := range api.mgr.Registry().Names() {
		if !installed[name] {
			resp.Available = append(resp.Available, name)
		}
	}
	return resp, nil
}

func (api *pluginApi) list(ctx echo.Context) error {
	resp, err := api.overview(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *pluginApi) install(ctx echo.Context) error {
	var data InstallRequest
	if err := bindJSON(ctx, &data, "plugin"); err != nil {
		return err
	}
	reg, err := api.mgr.Install(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "installing plugin")
	}
	return ctx.JSON(http.StatusCreated, reg)
}

func (api *pluginApi) retrieve(ctx echo.Context) error {
	return api.respond(ctx, http.StatusOK)
}

func (api *pluginApi) respond(ctx echo.Context, code int) error {
	reg, err := api.mgr.Get(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "getting plugin")
	}
	return ctx.JSON(code, reg)
}

func (api *pluginApi) enable(ctx echo.Context) error {
	if err := api.mgr.Enable(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return errors.Wrap(err, "enabling plugin")
	}
	return api.respond(ctx, http.StatusOK)
}

func (api *pluginApi) disable(ctx echo.Context) error {
	if err := api.mgr.Disable(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return errors.Wrap(err, "disabling plugin")
	}
	return api.respond(ctx, http.StatusOK)
}

func (api *pluginApi) order(ctx echo.Context) error {
	var data OrderRequest
	if err := bindJSON(ctx, &data, "order"); err != nil {
		return err
	}
	if err := api.mgr.SetOrder(ctx.Request().Context(), ctx.Param("name"), data.Ordernum); err != nil {
		return errors.Wrap(err, "ordering plugin")
	}
	return api.respond(ctx, http.StatusOK)
}

func (api *pluginApi) upgrade(ctx echo.Context) error {
	applied, err := api.mgr.Upgrade(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "upgrading plugin")
	}
	return api.migrated(ctx, applied)
}

func (api *pluginApi) rollback(ctx echo.Context) error {
	var data RollbackRequest
	if err := bindJSON(ctx, &data, "rollback"); err != nil {
		return err
	}
	rolled, err := api.mgr.Rollback(ctx.Request().Context(), ctx.Param("name"), data.Version)
	if err != nil {
		return errors.Wrap(err, "rolling back plugin")
	}
	return api.migrated(ctx, rolled)
}

func (api *pluginApi) migrated(ctx echo.Context, n int) error {
	reg, err := api.mgr.Get(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "getting plugin")
	}
	return ctx.JSON(http.StatusOK, MigratedResponse{Registration: reg, Applied: n})
}

func (api *pluginApi) uninstall(ctx echo.Context) error {
	if err := api.mgr.Uninstall(ctx.Request().Context(), ctx.Param("name"), boolQuery(ctx, "force")); err != nil {
		return errors.Wrap(err, "uninstalling plugin")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// config view

func (api *pluginApi) configCaps() []permission.Capability {
	return []permission.Capability{permission.CapManagePlugins}
}

func (api *pluginApi) configData(ctx echo.Context) (interface{}, error) {
	return api.overview(ctx)
}

// configSubmit applies a manifest: listed plugins are installed or upgraded, then enabled and ordered.
func (api *pluginApi) configSubmit(ctx echo.Context) error {
	var data plugin.Manifest
	if err := bindJSON(ctx, &data, "manifest"); err != nil {
		return err
	}
	regs, err := api.mgr.ApplyManifest(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "applying manifest")
	}
	return ctx.JSON(http.StatusOK, regs)
}
