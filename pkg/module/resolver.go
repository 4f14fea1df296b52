package module

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"PlayCore/internal/config"
	"PlayCore/internal/env"
	xerrors "PlayCore/internal/errors"
	"PlayCore/pkg/logger"
)

// Scope carries what resolution needs besides the registry: the owning
// instance, its configuration and its environment snapshot.
type Scope struct {
	Owner  Owner
	Config *config.Config
	Env    env.Snapshot
	Logger *slog.Logger
}

func (s Scope) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logger.Named("resolver")
}

// contextFor builds the per-class constructor context.
func (s Scope) contextFor(c Class) *Context {
	mc := &Context{
		Owner:    s.Owner,
		Config:   s.Config,
		Env:      s.Env,
		Settings: s.Config.ModuleSettings(c.Info.Name),
		Logger:   s.log().With(slog.String("module", c.Info.Name), slog.String("role", string(c.Info.Role))),
	}
	return mc.Clone()
}

// Supported returns the classes of role whose predicate holds, in registry order.
// Predicates are evaluated synchronously before anything is constructed.
func Supported(reg *Registry, role Role, scope Scope) []Class {
	var out []Class
	for _, c := range reg.Classes(role) {
		if c.Supports(scope.Env, scope.Config) {
			out = append(out, c)
			continue
		}
		scope.log().Debug("module not supported",
			slog.String("role", string(role)),
			slog.String("module", c.Info.Name),
			slog.Any("missing", MissingCapabilities(c.Info, scope.Env)))
	}
	return out
}

// ResolveFirst constructs the first supported class of role. Classes after the
// first match are never evaluated further nor constructed.
func ResolveFirst[T Module](ctx context.Context, reg *Registry, role Role, scope Scope) (T, error) {
	var zero T
	for _, c := range reg.Classes(role) {
		if !c.Supports(scope.Env, scope.Config) {
			continue
		}
		m, err := construct[T](ctx, c, scope)
		if err != nil {
			return zero, err
		}
		scope.log().Info("module resolved", slog.String("role", string(role)), slog.String("module", m.Name()))
		return m, nil
	}
	return zero, xerrors.NoSupportedModule(string(role))
}

// ResolveAll constructs every supported class of role. The result preserves
// registry order; an empty result is not an error. Constructors of distinct
// classes run concurrently. A class whose constructor fails is logged and left
// out of the result. Only cancellation of ctx fails the call, in which case
// modules already built are unloaded.
func ResolveAll[T Module](ctx context.Context, reg *Registry, role Role, scope Scope) ([]T, error) {
	classes := Supported(reg, role, scope)
	if len(classes) == 0 {
		return []T{}, nil
	}
	out := make([]T, len(classes))
	built := make([]bool, len(classes))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range classes {
		g.Go(func() error {
			m, err := construct[T](gctx, c, scope)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				scope.log().Warn("module construction failed, skipping",
					slog.String("role", string(role)),
					slog.String("module", c.Info.Name),
					slog.Any("error", err))
				return nil
			}
			out[i] = m
			built[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i := range out {
			if built[i] {
				out[i].Unload()
			}
		}
		return nil, err
	}
	resolved := make([]T, 0, len(classes))
	for i, m := range out {
		if !built[i] {
			continue
		}
		scope.log().Info("module resolved", slog.String("role", string(role)), slog.String("module", m.Name()))
		resolved = append(resolved, m)
	}
	return resolved, nil
}

func construct[T Module](ctx context.Context, c Class, scope Scope) (T, error) {
	var zero T
	m, err := c.New(ctx, scope.contextFor(c))
	if err != nil {
		return zero, xerrors.Wrap(xerrors.CodeModuleConstruction, err,
			fmt.Sprintf("construct %s module %s", c.Info.Role, c.Info.Name),
			xerrors.WithMetadata("module", c.Info.Name), xerrors.WithMetadata("role", string(c.Info.Role)))
	}
	if m == nil {
		return zero, xerrors.New(xerrors.CodeModuleConstruction,
			fmt.Sprintf("%s module %s constructed nil", c.Info.Role, c.Info.Name))
	}
	typed, ok := m.(T)
	if !ok {
		m.Unload()
		return zero, xerrors.New(xerrors.CodeModuleConstruction,
			fmt.Sprintf("%s module %s has type %T", c.Info.Role, c.Info.Name, m))
	}
	return typed, nil
}
