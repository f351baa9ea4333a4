package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Factory returns a new, uninitialized agent.
type Factory func() Agent

// Registry maps agent types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry (useful for testing).
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

var defaultRegistry = NewRegistry()

// Register adds factory under agentType, replacing any previous factory.
func (r *Registry) Register(agentType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[agentType] = factory
}

// Factory returns the factory registered for agentType.
func (r *Registry) Factory(agentType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[agentType]
	return f, ok
}

// New creates an uninitialized agent of agentType.
func (r *Registry) New(agentType string) (Agent, error) {
	f, ok := r.Factory(agentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, agentType)
	}
	return f(), nil
}

// Types returns the registered agent types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry returns the process wide registry used by Register and New.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register registers a factory with the default registry.
func Register(agentType string, factory Factory) {
	defaultRegistry.Register(agentType, factory)
}

// New creates an agent from the default registry.
func New(agentType string) (Agent, error) {
	return defaultRegistry.New(agentType)
}

// Types lists the types in the default registry.
func Types() []string {
	return defaultRegistry.Types()
}
