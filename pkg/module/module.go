package module

import (
	"context"
	"log/slog"
	"time"

	"PlayCore/internal/config"
	"PlayCore/internal/container"
	"PlayCore/internal/env"
	"PlayCore/internal/events"
	"PlayCore/internal/media"
)

// Module defines the lifecycle hooks every module instance must satisfy.
type Module interface {
	// Name returns the stable identifier of the module within its role.
	Name() string
	// Boot performs one-time setup after construction.
	Boot(ctx context.Context) error
	// Load begins active use. It is called at most once per lifecycle.
	Load(ctx context.Context) error
	// Unload releases resources acquired by Boot or Load. It must be safe to
	// call repeatedly and on a module that was never loaded.
	Unload()
}

// Controller is the transport module of an instance.
type Controller interface {
	Module
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, volume float64) error
}

// Player is the rendering module of an instance.
type Player interface {
	Module
}

// Extension is an optional module.
type Extension interface {
	Module
}

// Owner is the back-reference modules hold to the instance that owns them.
type Owner interface {
	ID() string
	Controller() Controller
	Player() Player
	Media() (format string, backend media.Backend)
	Container() *container.Node
	On(event string, fn events.Listener) events.ListenerID
	Once(event string, fn events.Listener) events.ListenerID
	RemoveListener(event string, id events.ListenerID) bool
}

// Context is passed to module constructors.
type Context struct {
	// Owner is the instance constructing the module.
	Owner Owner
	// Config is the instance configuration. Modules must treat it as read-only.
	Config *config.Config
	// Env is the environment snapshot of the instance.
	Env env.Snapshot
	// Settings is the module specific configuration block, copied per module.
	Settings map[string]any
	// Logger is tagged with the module name and role.
	Logger *slog.Logger
}

// Clone returns a shallow copy of the context so modules can safely mutate settings.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Settings != nil {
		dup.Settings = make(map[string]any, len(c.Settings))
		for k, v := range c.Settings {
			dup.Settings[k] = v
		}
	}
	return &dup
}

// Predicate decides whether a class can serve the given environment and configuration.
// It must be free of side effects.
type Predicate func(snapshot env.Snapshot, cfg *config.Config) bool

// Factory constructs a module instance bound to ctx.
type Factory func(ctx context.Context, mc *Context) (Module, error)

// Class is a registrable module implementation: metadata, support predicate and factory.
type Class struct {
	Info      Info
	Supported Predicate
	New       Factory
}

// Name returns the class name.
func (c Class) Name() string { return c.Info.Name }
