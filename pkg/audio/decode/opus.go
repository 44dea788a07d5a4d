// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to int16 samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxFrameSamples is the longest Opus frame (120ms at 48kHz)
const maxFrameSamples = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, invalidCodec("Opus", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, audio.SetupError.Wrap(err, "failed to create opus decoder")
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]int16, maxFrameSamples*format.Channels),
	}, nil
}

// Decode converts an Opus packet to int16 samples
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	out := make([]int16, n*d.format.Channels)
	copy(out, d.pcm)
	return out, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
