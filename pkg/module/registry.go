package module

import (
	"errors"
	"fmt"
	"sync"
)

// Registry keeps the ordered candidate classes for every role.
// Resolution only reads from it.
type Registry struct {
	mu      sync.RWMutex
	classes map[Role][]Class
}

// NewRegistry constructs a registry pre-populated with classes.
func NewRegistry(classes ...Class) (*Registry, error) {
	r := &Registry{classes: make(map[Role][]Class)}
	for _, c := range classes {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a class to its role's candidate list.
func (r *Registry) Register(c Class) error {
	if c.Info.Name == "" {
		return errors.New("module name cannot be empty")
	}
	if !c.Info.Role.Valid() {
		return fmt.Errorf("module %s: unknown role %q", c.Info.Name, c.Info.Role)
	}
	if c.New == nil {
		return fmt.Errorf("module %s: factory cannot be nil", c.Info.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.classes[c.Info.Role] {
		if existing.Info.Name == c.Info.Name {
			return fmt.Errorf("%s module %s already registered", c.Info.Role, c.Info.Name)
		}
	}
	r.classes[c.Info.Role] = append(r.classes[c.Info.Role], c)
	return nil
}

// Classes returns a copy of the candidates registered for role, in registration order.
func (r *Registry) Classes(role Role) []Class {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Class(nil), r.classes[role]...)
}

// Names returns candidate names for role.
func (r *Registry) Names(role Role) []string {
	classes := r.Classes(role)
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Info.Name)
	}
	return names
}
