package connectors

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a connector from a CCP's JSON config and resolved credential.
type Factory func(config json.RawMessage, credential string) (Connector, error)

// Registry maps source types to connector factories. The orchestrator only
// ever sees the Connector interface that comes out of it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(sourceType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[sourceType] = f
}

func (r *Registry) Create(sourceType string, config json.RawMessage, credential string) (Connector, error) {
	r.mu.RLock()
	f, ok := r.factories[sourceType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
	return f(config, credential)
}

func (r *Registry) Supports(sourceType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[sourceType]
	return ok
}

func (r *Registry) SourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
