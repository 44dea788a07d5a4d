// ABOUTME: WAV file source
// ABOUTME: Decodes integer PCM WAV files with go-audio and mixes them to mono
package source

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV reads a PCM WAV file
type WAV struct {
	file     *os.File
	decoder  *wav.Decoder
	channels int
	bitDepth int
	rate     int
	title    string
	buf      *goaudio.IntBuffer
}

// NewWAV opens a WAV file
func NewWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("not a valid WAV file: %s", path)
	}
	if dec.WavAudioFormat != 1 {
		f.Close()
		return nil, fmt.Errorf("%w: WAV format %d (only integer PCM)", ErrUnsupported, dec.WavAudioFormat)
	}

	return &WAV{
		file:     f,
		decoder:  dec,
		channels: int(dec.NumChans),
		bitDepth: int(dec.BitDepth),
		rate:     int(dec.SampleRate),
		title:    titleFromPath(path),
		buf:      &goaudio.IntBuffer{Format: dec.Format()},
	}, nil
}

func (s *WAV) Read(samples []int16) (int, error) {
	need := len(samples) * s.channels
	if cap(s.buf.Data) < need {
		s.buf.Data = make([]int, need)
	}
	s.buf.Data = s.buf.Data[:need]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("WAV decode failed: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	frames := n / s.channels
	data := s.buf.Data[:frames*s.channels]
	if s.bitDepth == 8 {
		// 8-bit WAV is unsigned
		for i := range data {
			data[i] -= 128
		}
	}
	mixDown(samples[:frames], data, s.channels, s.bitDepth-16)

	return frames, nil
}

func (s *WAV) SampleRate() int { return s.rate }
func (s *WAV) Title() string   { return s.title }
func (s *WAV) Close() error    { return s.file.Close() }
