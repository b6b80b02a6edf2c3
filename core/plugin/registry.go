package plugin

import (
	"fmt"
	"sync"

	"github.com/cwarwicker/elbp/core"
)

// Registry maps plugin names to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     []string
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry holds the built-in plugins.
var DefaultRegistry = NewRegistry()

// Register adds a factory to the default registry.
func Register(name string, f Factory) {
	DefaultRegistry.Register(name, f)
}

// Register adds a factory. An invalid or duplicate name panics.
func (r *Registry) Register(name string, f Factory) {
	if !core.IsValidPluginName(name) {
		panic(fmt.Sprintf("plugin: invalid name %q", name))
	}
	if f == nil {
		panic(fmt.Sprintf("plugin: nil factory for %q", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("plugin: %q registered twice", name))
	}
	r.factories[name] = f
	r.names = append(r.names, name)
}

func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

func (r *Registry) factory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}
