package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/tutor"
	"github.com/cwarwicker/elbp/core/user"
)

const tutorsExportFilename = "tutors.csv"

type tutorApi struct {
	svc      *tutor.Service
	users    *user.Service
	resolver *permission.Resolver
	validate *validator.Validate
}

func registerTutorAPI(g *echo.Group, jwt echo.MiddlewareFunc, users *user.Service, svc *tutor.Service, resolver *permission.Resolver, validate *validator.Validate) {
	api := tutorApi{
		svc:      svc,
		users:    users,
		resolver: resolver,
		validate: validate,
	}
	manage := capMiddleware(users, permission.CapManageTutors)

	tg := g.Group("/tutors", jwt)
	tg.POST("", api.assign, manage)
	tg.DELETE("", api.unassign, manage)
	tg.POST("/import", api.importCSV, capMiddleware(users, permission.CapImportCSV))
	tg.GET("/export", api.exportCSV, manage)
	tg.GET("/:id/tutees", api.tutees)

	g.GET("/students/:id/tutors", api.tutors, jwt)
}

func (api *tutorApi) assign(ctx echo.Context) error {
	var data tutor.NewAssignment
	if err := bindJSON(ctx, &data, "assignment"); err != nil {
		return err
	}
	asg, err := api.svc.Assign(ctx.Request().Context(), api.validate, data)
	if err != nil {
		return errors.Wrap(err, "assigning tutor")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *tutorApi) unassign(ctx echo.Context) error {
	var ids [3]int64
	for i, name := range []string{"tutor", "student", "course"} {
		id, err := int64Query(ctx, name)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	if ids[0] == 0 || ids[1] == 0 {
		return core.NewValidationError(errors.New("tutor and student are required"))
	}

	if err := api.svc.Unassign(ctx.Request().Context(), ids[0], ids[1], ids[2]); err != nil {
		return errors.Wrap(err, "unassigning tutor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// importCSV reads the multipart `file` field. Rows failing to import are reported, not fatal.
func (api *tutorApi) importCSV(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "file is a required field"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	res, err := api.svc.Import(ctx.Request().Context(), f)
	if err != nil {
		return errors.Wrap(err, "importing tutors")
	}
	if res.Errors == nil {
		res.Errors = []tutor.ImportError{}
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *tutorApi) exportCSV(ctx echo.Context) error {
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+tutorsExportFilename+`"`)
	resp.WriteHeader(http.StatusOK)
	return errors.Wrap(api.svc.Export(ctx.Request().Context(), resp), "exporting tutors")
}

// tutees lists a tutor's students, to the tutor themselves or to tutor managers.
func (api *tutorApi) tutees(ctx echo.Context) error {
	tutorID, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	usr, caps, err := roleCaps(ctx, api.users)
	if err != nil {
		return err
	}
	if usr.ID != tutorID && !caps.Has(permission.CapManageTutors) {
		return errHttpForbidden
	}

	page, err := api.svc.ListTutees(ctx.Request().Context(), tutorID, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing tutees")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *tutorApi) tutors(ctx echo.Context) error {
	studentID, err := int64Param(ctx, "id")
	if err != nil {
		return err
	}
	if _, err = studentCaps(ctx, api.users, api.resolver, studentID, 0, permission.CapViewDashboard); err != nil {
		return err
	}

	entries, err := api.svc.ListTutors(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "listing tutors")
	}
	if entries == nil {
		entries = []tutor.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
