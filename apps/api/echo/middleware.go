package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/user"
)

// capMiddleware lets through users whose roles grant every one of caps.
func capMiddleware(svc *user.Service, caps ...permission.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if permission.RoleSet(usr.Roles).Has(caps...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// adminMiddleware lets through admins holding any of roles (any admin when empty).
func adminMiddleware(svc *user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.IsAdmin() && hasAnyRole(usr, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func hasAnyRole(usr user.User, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		for _, r := range usr.Roles {
			if r == role {
				return true
			}
		}
	}
	return false
}

// roleCaps returns the capabilities the context user holds from their roles alone.
func roleCaps(ctx echo.Context, svc *user.Service) (user.User, permission.Set, error) {
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return user.User{}, 0, errors.Wrap(err, "getting context user")
	}
	return usr, permission.RoleSet(usr.Roles), nil
}

// studentCaps resolves what the context user may do on studentID's records, failing unless caps are all held.
func studentCaps(ctx echo.Context, svc *user.Service, resolver *permission.Resolver, studentID, courseID int64, caps ...permission.Capability) (user.User, error) {
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context user")
	}
	set, err := resolver.Resolve(ctx.Request().Context(), usr, studentID, courseID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "resolving capabilities")
	}
	if !set.Has(caps...) {
		return user.User{}, errHttpForbidden
	}
	return usr, nil
}
