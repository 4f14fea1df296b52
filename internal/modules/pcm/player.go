// Package pcm implements the built-in player: it renders the selected track
// through a beep pause/volume chain and hands samples to the host on demand.
package pcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"PlayCore/internal/container"
	"PlayCore/internal/env"
	"PlayCore/pkg/module"
)

// Name is the registry name of the player.
const Name = "pcm"

// ErrNotAttached is returned by playback operations before a stream is attached.
var ErrNotAttached = errors.New("pcm: no stream attached")

// ErrNotSeekable is returned by Seek for unbounded streams.
var ErrNotSeekable = errors.New("pcm: stream is not seekable")

// Sink is the surface a controller drives.
type Sink interface {
	Attach(s beep.Streamer, seeker beep.StreamSeeker, format beep.Format)
	Detach()
	SetPaused(paused bool) error
	SetVolume(volume float64) error
	Seek(position time.Duration) error
}

// Player renders an attached stream.
type Player struct {
	log  *slog.Logger
	node *container.Node

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	seeker   beep.StreamSeeker
	format   beep.Format
	streamed int
}

var _ Sink = (*Player)(nil)

// Class returns the registrable player class.
func Class() module.Class {
	return module.Class{
		Info: module.Info{
			Name:        Name,
			Role:        module.RolePlayer,
			Description: "renders decoded audio through a beep pause and volume chain",
			Version:     "1.0.0",
			Requires:    []env.Capability{env.CapabilityPCM},
		},
		New: func(_ context.Context, mc *module.Context) (module.Module, error) {
			return New(mc), nil
		},
	}
}

// New constructs a player and mounts its surface under the owner's playback container.
func New(mc *module.Context) *Player {
	p := &Player{log: slog.Default()}
	if mc == nil {
		return p
	}
	if mc.Logger != nil {
		p.log = mc.Logger
	}
	if mc.Owner != nil {
		if root := mc.Owner.Container(); root != nil {
			if playback := root.Child(container.Playback); playback != nil {
				p.node = playback.Append(container.New(Name))
			}
		}
	}
	return p
}

// Name implements module.Module.
func (p *Player) Name() string { return Name }

// Boot implements module.Module.
func (p *Player) Boot(context.Context) error { return nil }

// Load implements module.Module.
func (p *Player) Load(context.Context) error { return nil }

// Unload detaches the stream and unmounts the surface.
func (p *Player) Unload() {
	p.Detach()
	if p.node != nil {
		if parent := p.node.Parent(); parent != nil {
			parent.Remove(p.node)
		}
	}
}

// Attach replaces the rendered stream. The player starts paused at full volume.
func (p *Player) Attach(s beep.Streamer, seeker beep.StreamSeeker, format beep.Format) {
	ctrl := &beep.Ctrl{Streamer: s, Paused: true}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl = ctrl
	p.volume = &effects.Volume{Streamer: ctrl, Base: 2}
	p.seeker = seeker
	p.format = format
	p.streamed = 0
	if p.node != nil {
		p.node.Set("sampleRate", fmt.Sprint(int(format.SampleRate)))
	}
}

// Detach drops the current stream.
func (p *Player) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl, p.volume, p.seeker = nil, nil, nil
	p.streamed = 0
}

// Attached reports whether a stream is attached.
func (p *Player) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl != nil
}

// SetPaused pauses or resumes rendering.
func (p *Player) SetPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return ErrNotAttached
	}
	p.ctrl.Paused = paused
	return nil
}

// Paused reports whether rendering is paused. A detached player is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl == nil || p.ctrl.Paused
}

// SetVolume sets a linear gain in [0, 1].
func (p *Player) SetVolume(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("pcm: volume %v out of range [0, 1]", v)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.volume == nil {
		return ErrNotAttached
	}
	if v == 0 {
		p.volume.Silent = true
		return nil
	}
	p.volume.Silent = false
	p.volume.Volume = math.Log2(v)
	return nil
}

// Volume returns the current linear gain.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.volume == nil || p.volume.Silent {
		return 0
	}
	return math.Pow(2, p.volume.Volume)
}

// Seek moves a seekable stream to position, clamped to the stream bounds.
func (p *Player) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return ErrNotAttached
	}
	if p.seeker == nil {
		return ErrNotSeekable
	}
	n := p.format.SampleRate.N(position)
	n = max(0, min(n, p.seeker.Len()))
	if err := p.seeker.Seek(n); err != nil {
		return fmt.Errorf("pcm: seek: %w", err)
	}
	p.streamed = n
	return nil
}

// Position returns the playback position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil || p.format.SampleRate == 0 {
		return 0
	}
	if p.seeker != nil {
		return p.format.SampleRate.D(p.seeker.Position())
	}
	return p.format.SampleRate.D(p.streamed)
}

// SampleRate returns the sample rate of the attached stream, or 0.
func (p *Player) SampleRate() beep.SampleRate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return 0
	}
	return p.format.SampleRate
}

// Stream fills samples from the rendering chain. It returns false once the
// stream is exhausted or when nothing is attached.
func (p *Player) Stream(samples [][2]float64) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.volume == nil {
		return 0, false
	}
	n, ok := p.volume.Stream(samples)
	if !p.ctrl.Paused {
		p.streamed += n
	}
	if !ok {
		p.log.Debug("pcm stream drained")
	}
	return n, ok
}
