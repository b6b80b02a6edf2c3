package setting

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindBool Kind = iota + 1
	KindInt
	KindString
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	}
	return "unknown"
}

// Definition declares a known setting key.
type Definition struct {
	Key     string
	Kind    Kind
	Default interface{}
	// New returns a pointer to a zero value that JSON settings decode into.
	New func() interface{}
	// Validate optionally checks a decoded value (dereferenced for JSON settings).
	Validate func(v interface{}) error
}

// Scope narrows a setting to a user and/or a plugin. The zero Scope is global.
type Scope struct {
	UserID int64  `query:"user" json:"user_id"`
	Plugin string `query:"plugin" json:"plugin"`
}

// fallbacks returns the scopes consulted for s, most specific first.
func (s Scope) fallbacks() []Scope {
	scopes := make([]Scope, 0, 4)
	if s.UserID != 0 && s.Plugin != "" {
		scopes = append(scopes, s)
	}
	if s.Plugin != "" {
		scopes = append(scopes, Scope{Plugin: s.Plugin})
	}
	if s.UserID != 0 {
		scopes = append(scopes, Scope{UserID: s.UserID})
	}
	return append(scopes, Scope{})
}

// Row is one stored setting value, JSON encoded.
type Row struct {
	Setting string `json:"setting"`
	Value   string `json:"value"`
	Scope   Scope  `json:"scope"`
}

// Schema is the set of declared settings.
type Schema struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewSchema(defs ...Definition) *Schema {
	s := &Schema{defs: make(map[string]Definition)}
	s.Declare(defs...)
	return s
}

// Declare adds definitions; declaring a key twice panics.
func (s *Schema) Declare(defs ...Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		if _, dup := s.defs[def.Key]; dup {
			panic(fmt.Sprintf("setting: %s declared twice", def.Key))
		}
		s.defs[def.Key] = def
	}
}

func (s *Schema) Lookup(key string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[key]
	return def, ok
}

// Keys returns the declared keys, sorted.
func (s *Schema) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.defs))
	for k := range s.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Well known keys
const (
	KeyLayout         = "layout"
	KeyRankColours    = "rank_colours"
	KeyAlertsEnabled  = "alerts_enabled"
	KeyDashboardTitle = "dashboard_title"
	KeyPerPage        = "per_page"
	KeyStudentAccess  = "student_access"
)

// RankColour maps a manual progress rank to the colour it is displayed with.
type RankColour struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Colour string `json:"colour"`
}

var hexColourRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func validateRankColours(v interface{}) error {
	colours, ok := v.([]RankColour)
	if !ok {
		return errors.New("invalid rank colours")
	}
	seen := make(map[int]bool, len(colours))
	for _, rc := range colours {
		if !hexColourRegex.MatchString(rc.Colour) {
			return errors.Errorf("rank %d: invalid colour %q", rc.Rank, rc.Colour)
		}
		if seen[rc.Rank] {
			return errors.Errorf("rank %d defined twice", rc.Rank)
		}
		seen[rc.Rank] = true
	}
	return nil
}

func validatePerPage(v interface{}) error {
	if n := v.(int64); n < 1 || n > 200 {
		return errors.New("must be between 1 and 200")
	}
	return nil
}

// DefaultSchema declares the dashboard's own settings. Plugins declare theirs at start-up.
func DefaultSchema() *Schema {
	return NewSchema(
		Definition{Key: KeyLayout, Kind: KindInt, Default: int64(0)},
		Definition{
			Key:  KeyRankColours,
			Kind: KindJSON,
			Default: []RankColour{
				{Rank: 1, Name: "At risk", Colour: "#d9534f"},
				{Rank: 2, Name: "Cause for concern", Colour: "#f0ad4e"},
				{Rank: 3, Name: "On target", Colour: "#5cb85c"},
			},
			New:      func() interface{} { return new([]RankColour) },
			Validate: validateRankColours,
		},
		Definition{Key: KeyAlertsEnabled, Kind: KindBool, Default: true},
		Definition{Key: KeyDashboardTitle, Kind: KindString, Default: "Electronic Learning Blue Print"},
		Definition{Key: KeyPerPage, Kind: KindInt, Default: int64(25), Validate: validatePerPage},
		Definition{Key: KeyStudentAccess, Kind: KindBool, Default: true},
	)
}
