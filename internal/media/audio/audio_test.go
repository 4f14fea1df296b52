package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"PlayCore/internal/media"
)

type silence struct{ remaining int }

func (s *silence) Stream(samples [][2]float64) (int, bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	n := min(len(samples), s.remaining)
	for i := range samples[:n] {
		samples[i] = [2]float64{}
	}
	s.remaining -= n
	return n, true
}

func (s *silence) Err() error { return nil }

func writeWAV(t *testing.T, dir, name string, samples int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, &silence{remaining: samples}, format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

func TestWAVProbeAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, "clip.wav", 8000)
	src := media.Source{URL: path}
	class := WAV()

	ok, err := class.CanPlay(context.Background(), src)
	if err != nil || !ok {
		t.Fatalf("expected wav to be playable: %v %v", ok, err)
	}
	backend, err := class.New(context.Background(), src)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr := backend.(Track)
	defer tr.Unload()
	if tr.Seeker() == nil {
		t.Fatalf("wav tracks must be seekable")
	}
	if tr.Duration() != time.Second {
		t.Fatalf("unexpected duration %v", tr.Duration())
	}
	tr.Unload()
	tr.Unload()
}

func TestFileProbesRejectMismatches(t *testing.T) {
	dir := t.TempDir()
	path := writeWAV(t, dir, "clip.wav", 10)

	if ok, _ := WAV().CanPlay(context.Background(), media.Source{URL: path, Type: "audio/mpeg"}); ok {
		t.Fatalf("type hint must exclude wav")
	}
	if ok, _ := MP3().CanPlay(context.Background(), media.Source{URL: path}); ok {
		t.Fatalf("mp3 must not claim a .wav file")
	}
	if ok, _ := WAV().CanPlay(context.Background(), media.Source{URL: "tone://440"}); ok {
		t.Fatalf("wav must not claim a tone url")
	}

	garbage := filepath.Join(dir, "broken.mp3")
	if err := os.WriteFile(garbage, []byte("not audio at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, err := MP3().CanPlay(context.Background(), media.Source{URL: garbage}); ok || err == nil {
		t.Fatalf("garbage mp3 must fail the probe: %v %v", ok, err)
	}
	if ok, err := WAV().CanPlay(context.Background(), media.Source{URL: filepath.Join(dir, "missing.wav")}); ok || err == nil {
		t.Fatalf("missing file must fail the probe")
	}
}

func TestToneBackend(t *testing.T) {
	src := media.Source{URL: "tone://440?duration=500ms"}
	ok, err := Tone().CanPlay(context.Background(), src)
	if err != nil || !ok {
		t.Fatalf("tone must be playable: %v", err)
	}
	backend, err := Tone().New(context.Background(), src)
	if err != nil {
		t.Fatalf("new tone: %v", err)
	}
	tr := backend.(Track)
	if tr.Seeker() != nil {
		t.Fatalf("tones are not seekable")
	}
	if tr.Duration() != 500*time.Millisecond {
		t.Fatalf("unexpected duration %v", tr.Duration())
	}

	buf := make([][2]float64, 512)
	total := 0
	for {
		n, more := tr.Streamer().Stream(buf)
		total += n
		if !more {
			break
		}
	}
	if total != ToneSampleRate.N(500*time.Millisecond) {
		t.Fatalf("unexpected sample count %d", total)
	}

	for _, bad := range []string{"tone://abc", "tone://0", "tone://30000", "tone://440?duration=soon"} {
		if ok, err := Tone().CanPlay(context.Background(), media.Source{URL: bad}); ok || err == nil {
			t.Fatalf("%s must be rejected", bad)
		}
	}
}

func TestRegistryOrder(t *testing.T) {
	got := Registry().Formats()
	want := []string{"wav", "mp3", "tone"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}
