package echoapi

import (
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads `page` and `per_page`; junk values fall back to the defaults.
func bindPage(ctx echo.Context) core.Page {
	number, _ := strconv.Atoi(ctx.QueryParam("page"))
	perPage, _ := strconv.Atoi(ctx.QueryParam("per_page"))
	return core.Page{Number: number, PerPage: perPage}.Clean()
}

// int64Param parses the path parameter name; a malformed ID is a 404.
func int64Param(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// int64Query parses the optional query parameter name, 0 when absent.
func int64Query(ctx echo.Context, name string) (int64, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		err = errors.Errorf("%s must be a positive integer", name)
		return 0, core.NewValidationError(err, core.FieldError{Field: name, Error: err.Error()})
	}
	return n, nil
}

func boolQuery(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}

// bindJSON decodes the request body only. echo's Bind also binds query params first,
// which fails on map and slice targets whenever the URL has a query string.
func bindJSON(ctx echo.Context, dst interface{}, what string) error {
	req := ctx.Request()
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return core.NewValidationError(errors.Errorf("invalid %s", what))
	}
	return nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}
