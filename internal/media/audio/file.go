package audio

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	"PlayCore/internal/media"
)

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

type fileFormat struct {
	name       string
	types      []string
	extensions []string
	decode     decodeFunc
}

var (
	wavFormat = fileFormat{
		name:       "wav",
		types:      []string{"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave"},
		extensions: []string{".wav", ".wave"},
		decode: func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(f)
		},
	}
	mp3Format = fileFormat{
		name:       "mp3",
		types:      []string{"audio/mpeg", "audio/mp3"},
		extensions: []string{".mp3"},
		decode: func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
			return mp3.Decode(f)
		},
	}
)

// WAV returns the backend class for RIFF/WAVE files.
func WAV() media.Class { return wavFormat.class() }

// MP3 returns the backend class for MPEG layer III files.
func MP3() media.Class { return mp3Format.class() }

func (ff fileFormat) class() media.Class {
	return media.Class{Name: ff.name, CanPlay: ff.canPlay, New: ff.open}
}

func (ff fileFormat) claims(src media.Source) bool {
	if src.Type != "" {
		return slices.Contains(ff.types, src.Type)
	}
	if slices.Contains(ff.extensions, src.Extension()) {
		return true
	}
	return slices.Contains(ff.types, src.MediaType())
}

// canPlay checks the type hint, then decodes the header and discards the decoder.
func (ff fileFormat) canPlay(ctx context.Context, src media.Source) (bool, error) {
	if !ff.claims(src) {
		return false, nil
	}
	path := src.Path()
	if path == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	stream, _, err := ff.decode(f)
	if err != nil {
		f.Close()
		return false, fmt.Errorf("%s header: %w", ff.name, err)
	}
	// decoders may already close the file; the second close error is irrelevant
	_ = stream.Close()
	_ = f.Close()
	return true, nil
}

func (ff fileFormat) open(ctx context.Context, src media.Source) (media.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(src.Path())
	if err != nil {
		return nil, err
	}
	stream, format, err := ff.decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", ff.name, err)
	}
	return &track{
		name:     ff.name,
		src:      src,
		streamer: stream,
		seeker:   stream,
		closer: func() error {
			err := stream.Close()
			_ = f.Close()
			return err
		},
		format:   format,
		length:   stream.Len(),
	}, nil
}
