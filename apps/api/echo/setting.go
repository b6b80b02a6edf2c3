package echoapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/setting"
	"github.com/cwarwicker/elbp/core/user"
)

type settingApi struct {
	svc   *setting.Service
	users *user.Service
}

func registerSettingAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *setting.Service) *settingApi {
	api := &settingApi{svc: svc, users: users}

	sg := g.Group("/settings", jwt)
	sg.GET("", api.resolved)
	sg.GET("/stored", api.stored, capMiddleware(users, permission.CapManageSettings))
	sg.GET("/:key", api.retrieve)
	sg.PUT("/:key", api.update)
	sg.DELETE("/:key", api.destroy)
	return api
}

// scope reads the `user` and `plugin` query parameters.
// Other users' scopes are reserved to settings managers, as is writing outside one's own user scope.
func (api *settingApi) scope(ctx echo.Context, write bool) (setting.Scope, error) {
	userID, err := int64Query(ctx, "user")
	if err != nil {
		return setting.Scope{}, err
	}
	scope := setting.Scope{UserID: userID, Plugin: ctx.QueryParam("plugin")}

	usr, caps, err := roleCaps(ctx, api.users)
	if err != nil {
		return setting.Scope{}, err
	}
	if caps.Has(permission.CapManageSettings) {
		return scope, nil
	}
	own := scope.UserID != 0 && scope.UserID == usr.ID
	if own || (!write && scope.UserID == 0) {
		return scope, nil
	}
	return setting.Scope{}, errHttpForbidden
}

func unknownSetting(err error) error {
	if errors.Cause(err) == setting.ErrUnknownSetting {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

func (api *settingApi) resolved(ctx echo.Context) error {
	scope, err := api.scope(ctx, false)
	if err != nil {
		return err
	}
	values, err := api.svc.Resolved(ctx.Request().Context(), scope)
	if err != nil {
		return errors.Wrap(err, "resolving settings")
	}
	return ctx.JSON(http.StatusOK, values)
}

func (api *settingApi) stored(ctx echo.Context) error {
	rows, err := api.svc.Stored(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing settings")
	}
	if rows == nil {
		rows = []setting.Row{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	scope, err := api.scope(ctx, false)
	if err != nil {
		return err
	}
	v, err := api.svc.Get(ctx.Request().Context(), ctx.Param("key"), scope)
	if err != nil {
		return unknownSetting(err)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"key": ctx.Param("key"), "value": v})
}

// update stores the raw JSON request body as the setting's value.
func (api *settingApi) update(ctx echo.Context) error {
	scope, err := api.scope(ctx, true)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading body")
	}
	if err = api.svc.SetRaw(ctx.Request().Context(), ctx.Param("key"), scope, raw); err != nil {
		return unknownSetting(err)
	}
	return api.retrieve(ctx)
}

func (api *settingApi) destroy(ctx echo.Context) error {
	scope, err := api.scope(ctx, true)
	if err != nil {
		return err
	}
	if err = api.svc.Unset(ctx.Request().Context(), ctx.Param("key"), scope); err != nil {
		return unknownSetting(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// config view

func (api *settingApi) configCaps() []permission.Capability {
	return []permission.Capability{permission.CapManageSettings}
}

type settingsView struct {
	Keys   []string               `json:"keys"`
	Values map[string]interface{} `json:"values"`
}

func (api *settingApi) configData(ctx echo.Context) (interface{}, error) {
	values, err := api.svc.Resolved(ctx.Request().Context(), setting.Scope{})
	if err != nil {
		return nil, err
	}
	return settingsView{Keys: api.svc.Schema().Keys(), Values: values}, nil
}

// configSubmit stores a key to value object of global settings, in key order.
func (api *settingApi) configSubmit(ctx echo.Context) error {
	var data map[string]json.RawMessage
	if err := bindJSON(ctx, &data, "settings"); err != nil {
		return err
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var fldErrs []core.FieldError
	for _, key := range keys {
		err := api.svc.SetRaw(ctx.Request().Context(), key, setting.Scope{}, data[key])
		switch {
		case err == nil:
		case errors.Cause(err) == setting.ErrUnknownSetting:
			fldErrs = append(fldErrs, core.FieldError{Field: key, Error: setting.ErrUnknownSetting.Error()})
		default:
			if verr, ok := errors.Cause(err).(*core.ValidationError); ok {
				fldErrs = append(fldErrs, verr.Fields...)
				continue
			}
			return errors.Wrapf(err, "storing %s", key)
		}
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}

	view, err := api.configData(ctx)
	if err != nil {
		return errors.Wrap(err, "resolving settings")
	}
	return ctx.JSON(http.StatusOK, view)
}
