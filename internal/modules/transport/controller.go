// Package transport implements the built-in controller. It binds the selected
// audio track to the pcm player on Load and translates transport commands into
// player operations.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"PlayCore/internal/env"
	xerrors "PlayCore/internal/errors"
	"PlayCore/internal/media/audio"
	"PlayCore/internal/modules/pcm"
	"PlayCore/pkg/module"
)

// Name is the registry name of the controller.
const Name = "transport"

// Controller drives a pcm.Sink.
type Controller struct {
	owner module.Owner
	log   *slog.Logger

	mu            sync.Mutex
	settings      map[string]any
	initialVolume float64
	booted        bool
	loaded        bool
	sink          pcm.Sink
	track         audio.Track
}

// Class returns the registrable controller class.
func Class() module.Class {
	return module.Class{
		Info: module.Info{
			Name:        Name,
			Role:        module.RoleController,
			Description: "binds decoded tracks to the pcm player",
			Version:     "1.0.0",
			Requires:    []env.Capability{env.CapabilityPCM},
		},
		New: func(_ context.Context, mc *module.Context) (module.Module, error) {
			return New(mc), nil
		},
	}
}

// New constructs an unbooted controller.
func New(mc *module.Context) *Controller {
	c := &Controller{log: slog.Default(), initialVolume: 1}
	if mc != nil {
		c.owner = mc.Owner
		c.settings = mc.Settings
		if mc.Logger != nil {
			c.log = mc.Logger
		}
	}
	return c
}

// Name implements module.Module.
func (c *Controller) Name() string { return Name }

// Boot validates the controller settings.
func (c *Controller) Boot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if raw, ok := c.settings["initialVolume"]; ok {
		v, err := toFloat(raw)
		if err != nil {
			return fmt.Errorf("transport: initialVolume: %w", err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("transport: initialVolume %v out of range [0, 1]", v)
		}
		c.initialVolume = v
	}
	c.booted = true
	return nil
}

// Load attaches the owner's selected track to the owner's player.
func (c *Controller) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return errors.New("transport: already loaded")
	}
	if c.owner == nil {
		return errors.New("transport: no owner")
	}
	sink, ok := c.owner.Player().(pcm.Sink)
	if !ok {
		return fmt.Errorf("transport: player %T cannot render pcm", c.owner.Player())
	}
	format, backend := c.owner.Media()
	track, ok := backend.(audio.Track)
	if !ok {
		return fmt.Errorf("transport: media format %q does not provide an audio track", format)
	}
	sink.Attach(track.Streamer(), track.Seeker(), track.Format())
	if err := sink.SetVolume(c.initialVolume); err != nil {
		sink.Detach()
		return err
	}
	c.sink, c.track, c.loaded = sink, track, true
	c.log.Info("track attached",
		slog.String("format", format),
		slog.String("source", track.Source().URL),
		slog.Duration("duration", track.Duration()))
	return nil
}

// Unload detaches the player. Safe to call repeatedly.
func (c *Controller) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink != nil {
		c.sink.Detach()
	}
	c.sink, c.track, c.loaded = nil, nil, false
}

// Loaded reports whether a track is attached.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Play resumes rendering.
func (c *Controller) Play(ctx context.Context) error {
	return c.withSink(ctx, "play", func(s pcm.Sink) error { return s.SetPaused(false) })
}

// Pause suspends rendering.
func (c *Controller) Pause(ctx context.Context) error {
	return c.withSink(ctx, "pause", func(s pcm.Sink) error { return s.SetPaused(true) })
}

// SeekTo moves the track position.
func (c *Controller) SeekTo(ctx context.Context, position time.Duration) error {
	if position < 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "seek position cannot be negative")
	}
	return c.withSink(ctx, "seek", func(s pcm.Sink) error { return s.Seek(position) })
}

// SetVolume sets the linear gain in [0, 1].
func (c *Controller) SetVolume(ctx context.Context, volume float64) error {
	return c.withSink(ctx, "volume", func(s pcm.Sink) error { return s.SetVolume(volume) })
}

func (c *Controller) withSink(ctx context.Context, op string, fn func(pcm.Sink) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return xerrors.New(xerrors.CodeInvalidState, fmt.Sprintf("transport: %s before load", op))
	}
	if err := fn(c.sink); err != nil {
		return xerrors.Wrap(xerrors.CodePlaybackFailure, err, "transport: "+op)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
