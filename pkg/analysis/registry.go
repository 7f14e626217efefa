package analysis

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a fresh analysis instance.
type Factory func() (Analysis, error)

// Registry maps analysis names to factories. Hosts register the analyses
// they ship explicitly; nothing is discovered at runtime.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	about     map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		about:     make(map[string]string),
	}
}

// Register adds a factory under name with a one-line description.
func (r *Registry) Register(name, description string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("analysis name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("analysis %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("analysis %q already registered", name)
	}
	r.factories[name] = factory
	r.about[name] = description
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name, description string, factory Factory) {
	if err := r.Register(name, description, factory); err != nil {
		panic(err)
	}
}

// New constructs the analysis registered under name.
func (r *Registry) New(name string) (Analysis, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Name: name, Reason: "no such analysis"}
	}

	a, err := factory()
	if err != nil {
		return nil, &ConfigurationError{Name: name, Reason: "cannot construct analysis", Err: err}
	}
	if err := Conform(a); err != nil {
		return nil, &ConfigurationError{Name: name, Reason: "factory returned no analysis"}
	}
	return a, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the description registered with name.
func (r *Registry) Describe(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.about[name]
}
