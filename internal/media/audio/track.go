// Package audio provides the built-in media backends. Each backend decodes a
// source into a beep stream that the pcm player renders.
package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"

	"PlayCore/internal/media"
)

// Track is a media backend that exposes decoded audio.
type Track interface {
	media.Backend
	Streamer() beep.Streamer
	// Seeker returns nil when the track cannot seek.
	Seeker() beep.StreamSeeker
	Format() beep.Format
	// Duration returns 0 for unbounded tracks.
	Duration() time.Duration
}

type track struct {
	name     string
	src      media.Source
	streamer beep.Streamer
	seeker   beep.StreamSeeker
	closer   func() error
	format   beep.Format
	length   int
	once     sync.Once
}

func (t *track) Name() string              { return t.name }
func (t *track) Source() media.Source      { return t.src }
func (t *track) Streamer() beep.Streamer   { return t.streamer }
func (t *track) Seeker() beep.StreamSeeker { return t.seeker }
func (t *track) Format() beep.Format       { return t.format }

func (t *track) Duration() time.Duration {
	if t.length <= 0 {
		return 0
	}
	return t.format.SampleRate.D(t.length)
}

// Unload closes the decoder. Safe to call more than once.
func (t *track) Unload() {
	t.once.Do(func() {
		if t.closer != nil {
			_ = t.closer()
		}
	})
}
