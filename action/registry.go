package action

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the Definition of every action type, keyed by name.
//
// Contract:
// - Lifecycle: definitions are registered at bootstrap and never replaced.
// - Concurrency: safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds def. Registering a name twice fails with ErrDuplicateAction.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalidDefinition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, def.name)
	}
	r.defs[def.name] = def
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	return def, ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
