package plugin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"

	"github.com/cwarwicker/elbp/core"
)

// DateLayout is the date format accepted in Ajax params.
const DateLayout = "2006-01-02"

// Params wraps the Ajax parameter bag of one plugin call.
type Params struct {
	plugin string
	c      *gabs.Container
}

func NewParams(plugin string, c *gabs.Container) Params {
	if c == nil {
		c = gabs.New()
	}
	return Params{plugin: plugin, c: c}
}

func (p Params) missing(key string) error {
	return core.NewPluginError(p.plugin, fmt.Sprintf("%s is required", key))
}

func (p Params) invalid(key string) error {
	return core.NewPluginError(p.plugin, fmt.Sprintf("%s is invalid", key))
}

func (p Params) Has(key string) bool {
	return p.c.ExistsP(key) && p.c.Path(key).Data() != nil
}

// String returns the trimmed string at key; def when absent.
func (p Params) String(key string, def ...string) string {
	if !p.Has(key) {
		if len(def) > 0 {
			return def[0]
		}
		return ""
	}
	switch v := p.c.Path(key).Data().(type) {
	case string:
		return core.CleanString(v)
	default:
		return core.CleanString(fmt.Sprint(v))
	}
}

func (p Params) RequiredString(key string) (string, error) {
	s := p.String(key)
	if s == "" {
		return "", p.missing(key)
	}
	return s, nil
}

// Int64 accepts JSON numbers and numeric strings.
func (p Params) Int64(key string) (int64, error) {
	if !p.Has(key) {
		return 0, p.missing(key)
	}
	switch v := p.c.Path(key).Data().(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, p.invalid(key)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, p.invalid(key)
		}
		return n, nil
	}
	return 0, p.invalid(key)
}

// OptionalInt64 is Int64 returning def when key is absent.
func (p Params) OptionalInt64(key string, def int64) (int64, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Int64(key)
}

// Date parses a DateLayout string or a unix timestamp.
func (p Params) Date(key string) (time.Time, error) {
	if !p.Has(key) {
		return time.Time{}, p.missing(key)
	}
	if s, ok := p.c.Path(key).Data().(string); ok {
		t, err := time.Parse(DateLayout, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, p.invalid(key)
		}
		return t.UTC(), nil
	}
	sec, err := p.Int64(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

// StringMap returns the object at key with every value stringified; booleans become "1"/"0".
func (p Params) StringMap(key string) map[string]string {
	out := make(map[string]string)
	if !p.Has(key) {
		return out
	}
	for k, child := range p.c.Path(key).ChildrenMap() {
		switch v := child.Data().(type) {
		case nil:
		case string:
			out[k] = v
		case bool:
			out[k] = "0"
			if v {
				out[k] = "1"
			}
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
