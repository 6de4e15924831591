package service

import (
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Registry maps declared service names (and optional versions) to concrete
// handlers. Registration is thread-safe; resolution is a read-mostly path
// hit on every routed task.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]core.ServiceHandler // name -> version -> handler
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]core.ServiceHandler)}
}

// Register makes a handler available under its Name() with no version
// qualifier. A handler with the same name replaces the previous one.
func (r *Registry) Register(h core.ServiceHandler) {
	r.RegisterVersion(h, "")
}

// RegisterVersion makes a handler available under its Name() and the given
// version. The empty version acts as the default when a task declares none
// or declares a version with no exact match registered.
func (r *Registry) RegisterVersion(h core.ServiceHandler, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.handlers[h.Name()]
	if !ok {
		versions = make(map[string]core.ServiceHandler)
		r.handlers[h.Name()] = versions
	}
	versions[version] = h
}

// Resolve returns the handler matching the descriptor's declared service
// name and version. An exact version match wins; otherwise the unversioned
// default is used. No match yields core.ErrRoutingUnresolved.
func (r *Registry) Resolve(d core.TaskDescriptor) (core.ServiceHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.handlers[d.ServiceName]
	if !ok {
		return nil, fmt.Errorf("%w: service %q", core.ErrRoutingUnresolved, d.ServiceName)
	}
	if h, ok := versions[d.ServiceVersion]; ok {
		return h, nil
	}
	if h, ok := versions[""]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: service %q version %q", core.ErrRoutingUnresolved, d.ServiceName, d.ServiceVersion)
}

// Names returns the registered service names, mainly for startup logging.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
