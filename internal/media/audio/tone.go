package audio

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"

	"PlayCore/internal/media"
)

// ToneSampleRate is the sample rate of generated tones.
const ToneSampleRate = beep.SampleRate(44100)

// Tone returns the backend class for generated sine tones addressed as
// tone://<hz>?duration=<go duration>.
func Tone() media.Class {
	return media.Class{
		Name: "tone",
		CanPlay: func(_ context.Context, src media.Source) (bool, error) {
			if src.Scheme() != "tone" {
				return false, nil
			}
			if _, _, err := parseTone(src.URL); err != nil {
				return false, err
			}
			return true, nil
		},
		New: func(_ context.Context, src media.Source) (media.Backend, error) {
			freq, dur, err := parseTone(src.URL)
			if err != nil {
				return nil, err
			}
			s, err := generators.SineTone(ToneSampleRate, freq)
			if err != nil {
				return nil, err
			}
			length := 0
			if dur > 0 {
				length = ToneSampleRate.N(dur)
				s = beep.Take(length, s)
			}
			return &track{
				name:     "tone",
				src:      src,
				streamer: s,
				format:   beep.Format{SampleRate: ToneSampleRate, NumChannels: 2, Precision: 2},
				length:   length,
			}, nil
		},
	}
}

func parseTone(raw string) (float64, time.Duration, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, 0, err
	}
	freq, err := strconv.ParseFloat(u.Host, 64)
	if err != nil || freq <= 0 {
		return 0, 0, fmt.Errorf("tone frequency %q is invalid", u.Host)
	}
	if freq >= float64(ToneSampleRate)/2 {
		return 0, 0, fmt.Errorf("tone frequency %v exceeds nyquist limit", freq)
	}
	var dur time.Duration
	if d := u.Query().Get("duration"); d != "" {
		dur, err = time.ParseDuration(d)
		if err != nil {
			return 0, 0, fmt.Errorf("tone duration: %w", err)
		}
	}
	return freq, dur, nil
}

// Registry returns the built-in media registry in priority order: wav, mp3, tone.
func Registry() *media.Registry {
	return media.NewRegistry().
		MustRegister("wav", WAV()).
		MustRegister("mp3", MP3()).
		MustRegister("tone", Tone())
}
