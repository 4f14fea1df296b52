package module

import (
	"errors"
	"fmt"
	goplugin "plugin"
)

// Loader resolves external binaries into module classes.
type Loader interface {
	Load(path string) (Class, error)
}

// GoPluginLoader uses the Go standard library plugin mechanism. The shared
// object must export a `Module` symbol of type Class, *Class or func() Class.
type GoPluginLoader struct{}

// Load opens the shared object and looks up its `Module` symbol.
func (GoPluginLoader) Load(path string) (Class, error) {
	if path == "" {
		return Class{}, errors.New("module plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return Class{}, fmt.Errorf("open module plugin %s: %w", path, err)
	}
	symbol, err := so.Lookup("Module")
	if err != nil {
		return Class{}, fmt.Errorf("lookup Module in %s: %w", path, err)
	}
	switch c := symbol.(type) {
	case *Class:
		if c == nil {
			return Class{}, errors.New("module symbol is nil")
		}
		return *c, nil
	case func() Class:
		return c(), nil
	case *func() Class:
		return (*c)(), nil
	default:
		return Class{}, fmt.Errorf("module symbol in %s has unsupported type %T", path, symbol)
	}
}

// LoadInto loads every path with loader and registers the resulting classes in order.
func LoadInto(reg *Registry, loader Loader, paths ...string) error {
	if loader == nil {
		loader = GoPluginLoader{}
	}
	for _, p := range paths {
		c, err := loader.Load(p)
		if err != nil {
			return err
		}
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register module plugin %s: %w", p, err)
		}
	}
	return nil
}
