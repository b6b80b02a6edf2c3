package setting

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/kat-co/vala"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

var ErrUnknownSetting = errors.New("unknown setting")

type (
	Repository interface {
		// GetSetting returns the raw value stored at exactly scope, or core.ErrNotFound.
		GetSetting(ctx context.Context, key string, scope Scope, exec ...core.DBExecutor) (string, error)
		// SetSetting inserts or replaces the value stored at exactly scope.
		SetSetting(ctx context.Context, key string, scope Scope, value string, exec ...core.DBExecutor) error
		DeleteSetting(ctx context.Context, key string, scope Scope, exec ...core.DBExecutor) error
		ListSettings(ctx context.Context, exec ...core.DBExecutor) ([]Row, error)
	}

	Service struct {
		repo   Repository
		schema *Schema
		cache  *cache.Cache
	}
)

// cached miss marker
type missing struct{}

func NewService(repo Repository, schema *Schema) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(schema, "schema"),
	).CheckAndPanic()
	return &Service{
		repo:   repo,
		schema: schema,
		cache:  cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (svc *Service) Schema() *Schema {
	return svc.schema
}

func cacheKey(key string, scope Scope) string {
	return fmt.Sprintf("%s|%d|%s", key, scope.UserID, scope.Plugin)
}

func (svc *Service) definition(key string) (Definition, error) {
	def, ok := svc.schema.Lookup(key)
	if !ok {
		return Definition{}, errors.Wrap(ErrUnknownSetting, key)
	}
	return def, nil
}

// raw returns the value stored at exactly scope, going through the cache.
func (svc *Service) raw(ctx context.Context, key string, scope Scope) (string, bool, error) {
	ck := cacheKey(key, scope)
	if v, ok := svc.cache.Get(ck); ok {
		if s, ok := v.(string); ok {
			return s, true, nil
		}
		return "", false, nil
	}

	val, err := svc.repo.GetSetting(ctx, key, scope)
	if core.IsNotFound(err) {
		svc.cache.SetDefault(ck, missing{})
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	svc.cache.SetDefault(ck, val)
	return val, true, nil
}

var errNullValue = errors.New("value cannot be null")

// decode parses a JSON encoded value into the Go type of def and validates it.
func decode(def Definition, raw []byte) (interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return nil, errors.Wrapf(errNullValue, "%s: expected %s value", def.Key, def.Kind)
	}

	var val interface{}
	switch def.Kind {
	case KindInt:
		n, err := decodeInt(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: expected %s value", def.Key, def.Kind)
		}
		val = n
	case KindBool, KindString, KindJSON:
		var target interface{}
		switch {
		case def.Kind == KindBool:
			target = new(bool)
		case def.Kind == KindString:
			target = new(string)
		case def.New == nil:
			target = new(interface{})
		default:
			target = def.New()
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return nil, errors.Wrapf(err, "%s: expected %s value", def.Key, def.Kind)
		}
		val = reflect.ValueOf(target).Elem().Interface()
	default:
		return nil, errors.Errorf("%s: unsupported kind", def.Key)
	}

	if def.Validate != nil {
		if err := def.Validate(val); err != nil {
			return nil, errors.Wrap(err, def.Key)
		}
	}
	return val, nil
}

// decodeInt accepts whole JSON numbers only.
func decodeInt(raw []byte) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, errors.Errorf("not a number: %s", raw)
	}
	n, err := strconv.ParseInt(num.String(), 10, 64)
	if err != nil {
		return 0, errors.Errorf("not a whole number: %s", num)
	}
	return n, nil
}

// Get resolves key for scope: user+plugin, plugin, user, global, then the declared default.
func (svc *Service) Get(ctx context.Context, key string, scope Scope) (interface{}, error) {
	def, err := svc.definition(key)
	if err != nil {
		return nil, err
	}
	for _, sc := range scope.fallbacks() {
		raw, found, err := svc.raw(ctx, key, sc)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		return decode(def, []byte(raw))
	}
	return def.Default, nil
}

func (svc *Service) GetBool(ctx context.Context, key string, scope Scope) (bool, error) {
	v, err := svc.Get(ctx, key, scope)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("%s is not a bool setting", key)
	}
	return b, nil
}

func (svc *Service) GetInt(ctx context.Context, key string, scope Scope) (int64, error) {
	v, err := svc.Get(ctx, key, scope)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errors.Errorf("%s is not an int setting", key)
	}
	return n, nil
}

func (svc *Service) GetString(ctx context.Context, key string, scope Scope) (string, error) {
	v, err := svc.Get(ctx, key, scope)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("%s is not a string setting", key)
	}
	return s, nil
}

// RankColours returns the configured progress-rank colours.
func (svc *Service) RankColours(ctx context.Context) ([]RankColour, error) {
	v, err := svc.Get(ctx, KeyRankColours, Scope{})
	if err != nil {
		return nil, err
	}
	colours, ok := v.([]RankColour)
	if !ok {
		return nil, errors.New("rank colours setting is corrupt")
	}
	return colours, nil
}

// Set validates value against the declared kind, then stores it at exactly scope.
func (svc *Service) Set(ctx context.Context, key string, scope Scope, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return svc.SetRaw(ctx, key, scope, raw)
}

// SetRaw is Set for an already JSON encoded value.
func (svc *Service) SetRaw(ctx context.Context, key string, scope Scope, raw []byte) error {
	def, err := svc.definition(key)
	if err != nil {
		return err
	}
	if _, err = decode(def, raw); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: key, Error: errors.Cause(err).Error()})
	}
	if err = svc.repo.SetSetting(ctx, key, scope, string(raw)); err != nil {
		return err
	}
	svc.cache.Delete(cacheKey(key, scope))
	return nil
}

// Unset removes the value stored at exactly scope; lookups fall back to the wider scopes.
func (svc *Service) Unset(ctx context.Context, key string, scope Scope) error {
	if _, err := svc.definition(key); err != nil {
		return err
	}
	if err := svc.repo.DeleteSetting(ctx, key, scope); err != nil {
		return err
	}
	svc.cache.Delete(cacheKey(key, scope))
	return nil
}

// Resolved returns every declared setting resolved for scope.
func (svc *Service) Resolved(ctx context.Context, scope Scope) (map[string]interface{}, error) {
	keys := svc.schema.Keys()
	out := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		v, err := svc.Get(ctx, key, scope)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// Stored lists the raw rows, for the settings admin view.
func (svc *Service) Stored(ctx context.Context) ([]Row, error) {
	return svc.repo.ListSettings(ctx)
}
