package resource

import (
	"fmt"
	"sync"
)

// Registry holds all resource descriptors. Descriptors are registered during
// startup and immutable afterwards.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*Descriptor)}
}

// Register validates and adds a descriptor.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", d.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[d.Name]; exists {
		return fmt.Errorf("register %s: duplicate resource", d.Name)
	}
	r.resources[d.Name] = d
	return nil
}

// MustRegister registers or panics. Descriptors are static configuration;
// a bad one should fail startup.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the descriptor with the given name, or nil.
func (r *Registry) Get(name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[name]
}

// All returns all registered descriptors.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.resources))
	for _, d := range r.resources {
		out = append(out, d)
	}
	return out
}
