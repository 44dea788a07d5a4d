// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 20ms int16 frames to Opus packets
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxPacketSize bounds a single Opus packet
const maxPacketSize = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int
	packet    []byte
}

// NewOpus creates a new Opus encoder. Opus accepts 8, 12, 16, 24 and 48 kHz.
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, invalidCodec("Opus", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, audio.SetupError.Wrap(err, "failed to create opus encoder")
	}

	return &OpusEncoder{
		encoder:   encoder,
		channels:  format.Channels,
		frameSize: format.SampleRate / 50, // 20ms frame
		packet:    make([]byte, maxPacketSize),
	}, nil
}

// Encode converts one 20ms frame of int16 samples to an Opus packet
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	if len(samples) != e.frameSize*e.channels {
		return nil, fmt.Errorf("opus frame must be %d samples, got %d", e.frameSize*e.channels, len(samples))
	}

	n, err := e.encoder.Encode(samples, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.packet[:n])
	return out, nil
}

// FrameSize returns samples per channel in a 20ms frame
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
