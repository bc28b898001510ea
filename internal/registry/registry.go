package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/node"
)

// ErrUnknownType is returned when no factory is registered for a type name.
var ErrUnknownType = errors.New("unknown node type")

// Factory produces a new, unattached node instance.
type Factory func() node.Node

// Module is the interface that all node modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the node factories of a single application instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Load registers all given modules.
func (r *Registry) Load(modules ...Module) *Registry {
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterNode registers a factory for a node type name.
func (r *Registry) RegisterNode(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("node type with name '%s' already registered", name))
	}
	slog.Debug("Registering node type.", "name", name)
	r.factories[name] = factory
}

// Create instantiates a node by type name.
func (r *Registry) Create(name string) (node.Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return factory(), nil
}

// Has reports whether a factory is registered for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
