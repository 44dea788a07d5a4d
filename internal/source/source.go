// ABOUTME: Mono PCM16 sources for the echo server's greetings and local playback
// ABOUTME: Opens WAV, MP3, FLAC, and Ogg Vorbis files and generates test tones
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source yields mono 16-bit samples at SampleRate. Read returns io.EOF
// once the source is exhausted.
type Source interface {
	Read(samples []int16) (int, error)
	SampleRate() int
	Title() string
	Close() error
}

// ErrUnsupported is returned for file types with no decoder
var ErrUnsupported = errors.New("unsupported audio format")

// Open opens an audio file by extension
func Open(path string) (Source, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return NewWAV(path)
	case ".mp3":
		return NewMP3(path)
	case ".ogg", ".oga":
		return NewOgg(path)
	case ".flac":
		return NewFLAC(path)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .wav, .mp3, .ogg, .flac)", ErrUnsupported, ext)
	}
}

// ReadAll drains src
func ReadAll(src Source) ([]int16, error) {
	var out []int16
	buf := make([]int16, 4096)
	for {
		n, err := src.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// mixDown averages interleaved int frames into mono, shifting each value
// right by shift bits first
func mixDown(dst []int16, interleaved []int, channels int, shift int) {
	for i := range dst {
		sum := 0
		for c := 0; c < channels; c++ {
			v := interleaved[i*channels+c]
			if shift > 0 {
				v >>= shift
			} else if shift < 0 {
				v <<= -shift
			}
			sum += v
		}
		dst[i] = int16(sum / channels)
	}
}
