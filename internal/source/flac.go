// ABOUTME: FLAC file source
// ABOUTME: Decodes frame by frame with mewkiz/flac and mixes down to mono 16-bit
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLAC reads a FLAC file
type FLAC struct {
	file     *os.File
	stream   *flac.Stream
	title    string
	channels int
	bitDepth int

	// decoded mono samples of the current frame not yet returned
	pending []int16
	frame   []int
}

// NewFLAC opens a FLAC file
func NewFLAC(path string) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	return &FLAC{
		file:     f,
		stream:   stream,
		title:    titleFromPath(path),
		channels: int(stream.Info.NChannels),
		bitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

func (s *FLAC) Read(samples []int16) (int, error) {
	n := 0
	for n < len(samples) {
		if len(s.pending) == 0 {
			if err := s.next(); err != nil {
				if err == io.EOF && n > 0 {
					return n, nil
				}
				return n, err
			}
		}
		c := copy(samples[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

// next decodes one FLAC frame into pending
func (s *FLAC) next() error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("FLAC decode failed: %w", err)
	}

	size := int(frame.BlockSize)
	if cap(s.frame) < size*s.channels {
		s.frame = make([]int, size*s.channels)
	}
	interleaved := s.frame[:size*s.channels]
	for i := 0; i < size; i++ {
		for ch := 0; ch < s.channels; ch++ {
			interleaved[i*s.channels+ch] = int(frame.Subframes[ch].Samples[i])
		}
	}

	mono := make([]int16, size)
	mixDown(mono, interleaved, s.channels, s.bitDepth-16)
	s.pending = mono
	return nil
}

func (s *FLAC) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *FLAC) Title() string   { return s.title }

func (s *FLAC) Close() error {
	s.stream.Close()
	return s.file.Close()
}
