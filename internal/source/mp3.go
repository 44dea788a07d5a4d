// ABOUTME: MP3 file source
// ABOUTME: Decodes with go-mp3, which always yields 16-bit stereo
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 reads an MP3 file
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	title   string
	buf     []byte
	frames  []int
}

// NewMP3 opens an MP3 file
func NewMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3{
		file:    f,
		decoder: decoder,
		title:   titleFromPath(path),
	}, nil
}

func (s *MP3) Read(samples []int16) (int, error) {
	// 2 channels x 2 bytes
	need := len(samples) * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
		s.frames = make([]int, len(samples)*2)
	}

	n, err := io.ReadFull(s.decoder, s.buf[:need])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("MP3 decode failed: %w", err)
	}
	frames := n / 4
	if frames == 0 {
		return 0, io.EOF
	}

	for i := 0; i < frames*2; i++ {
		s.frames[i] = int(int16(binary.LittleEndian.Uint16(s.buf[i*2:])))
	}
	mixDown(samples[:frames], s.frames[:frames*2], 2, 0)

	return frames, nil
}

func (s *MP3) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3) Title() string   { return s.title }
func (s *MP3) Close() error    { return s.file.Close() }
