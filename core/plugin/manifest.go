package plugin

import (
	"os"

	"github.com/creasty/defaults"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cwarwicker/elbp/core"
)

// Manifest lists the plugins a site installs, in display order.
//
//	plugins:
//	  - name: attendance
//	  - name: targets
//	    enabled: false
type Manifest struct {
	Plugins []ManifestEntry `yaml:"plugins" json:"plugins"`
}

type ManifestEntry struct {
	Name    string `yaml:"name" json:"name"`
	Enabled bool   `yaml:"enabled" json:"enabled" default:"true"`
	Order   int    `yaml:"order" json:"order"`
}

// UnmarshalYAML applies the entry defaults before decoding.
func (e *ManifestEntry) UnmarshalYAML(value *yaml.Node) error {
	if err := defaults.Set(e); err != nil {
		return err
	}
	type plain ManifestEntry
	return value.Decode((*plain)(e))
}

// UnmarshalJSON applies the entry defaults before decoding.
func (e *ManifestEntry) UnmarshalJSON(data []byte) error {
	if err := defaults.Set(e); err != nil {
		return err
	}
	type plain ManifestEntry
	return json.Unmarshal(data, (*plain)(e))
}

// Normalize rejects unnamed and repeated entries and orders unordered entries by position.
func (m *Manifest) Normalize() error {
	seen := make(map[string]bool, len(m.Plugins))
	for i := range m.Plugins {
		entry := &m.Plugins[i]
		if entry.Name == "" {
			return core.NewValidationError(errors.Errorf("plugin manifest: entry %d has no name", i+1))
		}
		if seen[entry.Name] {
			return core.NewValidationError(errors.Errorf("plugin manifest: %s listed twice", entry.Name))
		}
		seen[entry.Name] = true
		if entry.Order == 0 {
			entry.Order = i + 1
		}
	}
	return nil
}

func ReadManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.Wrap(err, "reading plugin manifest")
	}
	return ParseManifest(content)
}

func ParseManifest(content []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(content, &m); err != nil {
		return Manifest{}, errors.Wrap(err, "parsing plugin manifest")
	}
	if err := m.Normalize(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
