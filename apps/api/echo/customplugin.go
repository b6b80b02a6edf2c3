package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/customplugin"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/user"
)

type customPluginApi struct {
	svc      *customplugin.Service
	users    *user.Service
	resolver *permission.Resolver
	validate *validator.Validate
}

func registerCustomPluginAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *customplugin.Service, resolver *permission.Resolver, validate *validator.Validate) *customPluginApi {
	api := &customPluginApi{
		svc:      svc,
		users:    users,
		resolver: resolver,
		validate: validate,
	}
	manage := capMiddleware(users, permission.CapManagePlugins)

	cg := g.Group("/custom-plugins", jwt)
	cg.GET("", api.list, manage)
	cg.POST("", api.create, manage)

	dg := cg.Group("/:name")
	dg.GET("", api.retrieve, manage)
	dg.PUT("", api.update, manage)
	dg.DELETE("", api.destroy, manage)
	dg.POST("/enable", api.enable, manage)
	dg.POST("/disable", api.disable, manage)

	// record endpoints, checked against the student
	dg.GET("/items", api.items)
	dg.POST("/items", api.addItem)
	dg.PUT("/items/:item", api.updateItem)
	dg.DELETE("/items/:item", api.deleteItem)
	return api
}

type ItemRequest struct {
	StudentID int64             `json:"student"`
	CourseID  int64             `json:"course"`
	Values    map[string]string `json:"values"`
}

func (api *customPluginApi) list(ctx echo.Context) error {
	cps, err := api.svc.List(ctx.Request().Context(), boolQuery(ctx, "enabled"))
	if err != nil {
		return errors.Wrap(err, "listing custom plugins")
	}
	if cps == nil {
		cps = []customplugin.CustomPlugin{}
	}
	return ctx.JSON(http.StatusOK, cps)
}

func (api *customPluginApi) create(ctx echo.Context) error {
	var data customplugin.NewCustomPlugin
	if err := bindJSON(ctx, &data, "plugin"); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cp, err := api.svc.Create(ctx.Request().Context(), api.validate, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "creating custom plugin")
	}
	return ctx.JSON(http.StatusCreated, cp)
}

func (api *customPluginApi) retrieve(ctx echo.Context) error {
	cp, err := api.svc.Get(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "getting custom plugin")
	}
	return ctx.JSON(http.StatusOK, cp)
}

func (api *customPluginApi) update(ctx echo.Context) error {
	var data customplugin.UpdateSchema
	if err := bindJSON(ctx, &data, "schema"); err != nil {
		return err
	}
	cp, err := api.svc.UpdateSchema(ctx.Request().Context(), api.validate, ctx.Param("name"), data)
	if err != nil {
		return errors.Wrap(err, "updating custom plugin")
	}
	return ctx.JSON(http.StatusOK, cp)
}

func (api *customPluginApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return errors.Wrap(err, "deleting custom plugin")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *customPluginApi) enable(ctx echo.Context) error {
	if err := api.svc.Enable(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return errors.Wrap(err, "enabling custom plugin")
	}
	return api.retrieve(ctx)
}

func (api *customPluginApi) disable(ctx echo.Context) error {
	if err := api.svc.Disable(ctx.Request().Context(), ctx.Param("name")); err != nil {
		return errors.Wrap(err, "disabling custom plugin")
	}
	return api.retrieve(ctx)
}

func (api *customPluginApi) items(ctx echo.Context) error {
	studentID, err := int64Query(ctx, "student")
	if err != nil {
		return err
	}
	if _, err = studentCaps(ctx, api.users, api.resolver, studentID, 0, permission.CapViewDashboard); err != nil {
		return err
	}

	page, err := api.svc.ListItems(ctx.Request().Context(), ctx.Param("name"), studentID, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing items")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *customPluginApi) addItem(ctx echo.Context) error {
	var data ItemRequest
	if err := bindJSON(ctx, &data, "record"); err != nil {
		return err
	}
	if data.StudentID <= 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "student", Error: "student is a required field"})
	}
	usr, err := studentCaps(ctx, api.users, api.resolver, data.StudentID, data.CourseID, permission.CapAddRecords)
	if err != nil {
		return err
	}

	item, err := api.svc.AddItem(ctx.Request().Context(), ctx.Param("name"), data.StudentID, data.CourseID, data.Values, usr.ID)
	if err != nil {
		return errors.Wrap(err, "adding item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *customPluginApi) updateItem(ctx echo.Context) error {
	itemID, err := int64Param(ctx, "item")
	if err != nil {
		return err
	}
	var data ItemRequest
	if err = bindJSON(ctx, &data, "record"); err != nil {
		return err
	}
	if _, err = studentCaps(ctx, api.users, api.resolver, data.StudentID, data.CourseID, permission.CapEditRecords); err != nil {
		return err
	}

	item, err := api.svc.UpdateItem(ctx.Request().Context(), ctx.Param("name"), data.StudentID, itemID, data.Values)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *customPluginApi) deleteItem(ctx echo.Context) error {
	itemID, err := int64Param(ctx, "item")
	if err != nil {
		return err
	}
	studentID, err := int64Query(ctx, "student")
	if err != nil {
		return err
	}
	if _, err = studentCaps(ctx, api.users, api.resolver, studentID, 0, permission.CapDeleteRecords); err != nil {
		return err
	}

	if err = api.svc.DeleteItem(ctx.Request().Context(), ctx.Param("name"), studentID, itemID); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// config view

func (api *customPluginApi) configCaps() []permission.Capability {
	return []permission.Capability{permission.CapManagePlugins}
}

func (api *customPluginApi) configData(ctx echo.Context) (interface{}, error) {
	cps, err := api.svc.List(ctx.Request().Context(), false)
	if cps == nil {
		cps = []customplugin.CustomPlugin{}
	}
	return cps, err
}

func (api *customPluginApi) configSubmit(ctx echo.Context) error {
	return api.create(ctx)
}
