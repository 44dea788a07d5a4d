// ABOUTME: Ogg Vorbis file source
// ABOUTME: Decodes float samples with oggvorbis and quantizes them to mono PCM16
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/jfreymuth/oggvorbis"
)

// Ogg reads an Ogg Vorbis file
type Ogg struct {
	file     *os.File
	reader   *oggvorbis.Reader
	channels int
	title    string
	buf      []float32
}

// NewOgg opens an Ogg Vorbis file
func NewOgg(path string) (*Ogg, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Ogg file: %w", err)
	}

	r, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	return &Ogg{
		file:     f,
		reader:   r,
		channels: r.Channels(),
		title:    titleFromPath(path),
	}, nil
}

func (s *Ogg) Read(samples []int16) (int, error) {
	need := len(samples) * s.channels
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}

	// Read returns interleaved values, never a partial frame
	n, err := s.reader.Read(s.buf[:need])
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("Ogg decode failed: %w", err)
	}
	frames := n / s.channels
	if frames == 0 {
		return 0, io.EOF
	}

	scale := 1 / float32(s.channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < s.channels; c++ {
			sum += s.buf[i*s.channels+c]
		}
		// NaN from a corrupt packet becomes silence
		samples[i], _ = audio.FloatToInt16(sum * scale)
	}

	return frames, nil
}

func (s *Ogg) SampleRate() int { return s.reader.SampleRate() }
func (s *Ogg) Title() string   { return s.title }
func (s *Ogg) Close() error    { return s.file.Close() }
