package echoapi

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/file"
	"github.com/cwarwicker/elbp/core/user"
)

type fileApi struct {
	svc   *file.Service
	users *user.Service
}

func registerFileAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *file.Service) {
	api := fileApi{svc: svc, users: users}

	fg := g.Group("/files", jwt)
	fg.POST("", api.upload)
	fg.GET("/:code", api.download)
	fg.DELETE("/:code", api.destroy)
}

func (api *fileApi) upload(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "file is a required field"})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	f, err := api.svc.Store(ctx.Request().Context(), usr.ID, fh.Filename, src)
	if err != nil {
		return errors.Wrap(err, "storing file")
	}
	return ctx.JSON(http.StatusCreated, f)
}

// download serves the file behind a code to any authenticated user.
func (api *fileApi) download(ctx echo.Context) error {
	f, rd, err := api.svc.Open(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer rd.Close()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, f.MimeType)
	resp.Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	http.ServeContent(resp, ctx.Request(), f.Filename, f.CreatedAt, rd)
	return nil
}

func (api *fileApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	f, err := api.svc.Resolve(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "resolving file")
	}
	if f.OwnerID != usr.ID && !usr.IsAdmin() {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), f.Code); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.NoContent(http.StatusNoContent)
}
