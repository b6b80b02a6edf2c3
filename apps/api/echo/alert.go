package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/user"
)

type alertApi struct {
	svc      *alert.Service
	users    *user.Service
	resolver *permission.Resolver
	validate *validator.Validate
}

func registerAlertAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *alert.Service, resolver *permission.Resolver, validate *validator.Validate) *alertApi {
	api := &alertApi{
		svc:      svc,
		users:    users,
		resolver: resolver,
		validate: validate,
	}

	ag := g.Group("/alerts", jwt, capMiddleware(users, permission.CapManageAlerts))
	ag.GET("/events", api.events)
	ag.GET("/queue", api.queue, capMiddleware(users, permission.CapManageSettings))

	sg := ag.Group("/subscriptions")
	sg.GET("", api.subscriptions)
	sg.POST("", api.subscribe)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
	return api
}

func (api *alertApi) events(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Events())
}

func (api *alertApi) queue(ctx echo.Context) error {
	page, err := api.svc.Items(ctx.Request().Context(), ctx.QueryParam("status"), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing queue")
	}
	return ctx.JSON(http.StatusOK, page)
}

// subscriptions lists the context user's subscriptions; settings managers may pass another `recipient`.
func (api *alertApi) subscriptions(ctx echo.Context) error {
	usr, caps, err := roleCaps(ctx, api.users)
	if err != nil {
		return err
	}
	recipientID, err := int64Query(ctx, "recipient")
	if err != nil {
		return err
	}
	if recipientID == 0 {
		recipientID = usr.ID
	}
	if recipientID != usr.ID && !caps.Has(permission.CapManageSettings) {
		return errHttpForbidden
	}

	subs, err := api.list(ctx, recipientID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *alertApi) list(ctx echo.Context, recipientID int64) ([]alert.Subscription, error) {
	subs, err := api.svc.Subscriptions(ctx.Request().Context(), recipientID)
	if err != nil {
		return nil, errors.Wrap(err, "listing subscriptions")
	}
	if subs == nil {
		subs = []alert.Subscription{}
	}
	return subs, nil
}

// bind reads a subscription form. Watching a single student requires being able to see them.
func (api *alertApi) bind(ctx echo.Context) (alert.NewSubscription, error) {
	var data alert.NewSubscription
	if err := bindJSON(ctx, &data, "subscription"); err != nil {
		return data, err
	}
	if data.StudentID > 0 {
		if _, err := studentCaps(ctx, api.users, api.resolver, data.StudentID, data.CourseID, permission.CapViewDashboard); err != nil {
			return data, err
		}
	}
	return data, nil
}

func (api *alertApi) subscribe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data, err := api.bind(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Subscribe(ctx.Request().Context(), api.validate, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

// object loads the subscription at :id, hiding other users' ones from non managers.
func (api *alertApi) object(ctx echo.Context) (alert.Subscription, error) {
	id, err := int64Param(ctx, "id")
	if err != nil {
		return alert.Subscription{}, err
	}
	usr, caps, err := roleCaps(ctx, api.users)
	if err != nil {
		return alert.Subscription{}, err
	}
	sub, err := api.svc.GetSubscription(ctx.Request().Context(), id)
	if err != nil {
		return alert.Subscription{}, errors.Wrap(err, "getting subscription")
	}
	if sub.RecipientID != usr.ID && !caps.Has(permission.CapManageSettings) {
		return alert.Subscription{}, errHttpNotFound
	}
	return sub, nil
}

func (api *alertApi) retrieve(ctx echo.Context) error {
	sub, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *alertApi) update(ctx echo.Context) error {
	sub, err := api.object(ctx)
	if err != nil {
		return err
	}
	data, err := api.bind(ctx)
	if err != nil {
		return err
	}

	sub, err = api.svc.UpdateSubscription(ctx.Request().Context(), api.validate, sub, data)
	if err != nil {
		return errors.Wrap(err, "updating subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *alertApi) destroy(ctx echo.Context) error {
	sub, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSubscription(ctx.Request().Context(), sub.ID); err != nil {
		return errors.Wrap(err, "deleting subscription")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// config view

func (api *alertApi) configCaps() []permission.Capability {
	return []permission.Capability{permission.CapManageAlerts}
}

type alertsView struct {
	Events        []string             `json:"events"`
	Subscriptions []alert.Subscription `json:"subscriptions"`
}

func (api *alertApi) configData(ctx echo.Context) (interface{}, error) {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return nil, err
	}
	subs, err := api.list(ctx, usr.ID)
	if err != nil {
		return nil, err
	}
	return alertsView{Events: api.svc.Events(), Subscriptions: subs}, nil
}

func (api *alertApi) configSubmit(ctx echo.Context) error {
	return api.subscribe(ctx)
}
