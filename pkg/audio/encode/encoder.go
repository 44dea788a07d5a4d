// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all wire encoders
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// Encoder encodes PCM int16 samples to a wire format
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(samples []int16) ([]byte, error)

	// FrameSize returns the number of samples per channel one Encode call
	// expects, or 0 if any length is accepted
	FrameSize() int

	// Close releases encoder resources
	Close() error
}

// New returns the encoder for format.Codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, audio.SetupError.New("no encoder for codec %q", format.Codec)
	}
}

// Frames splits samples into encoder-sized frames. The final frame is
// zero-padded when the encoder requires fixed frames.
func Frames(enc Encoder, channels int, samples []int16) [][]int16 {
	size := enc.FrameSize() * channels
	if size == 0 {
		return [][]int16{samples}
	}

	var frames [][]int16
	for start := 0; start < len(samples); start += size {
		end := start + size
		if end <= len(samples) {
			frames = append(frames, samples[start:end])
			continue
		}
		last := make([]int16, size)
		copy(last, samples[start:])
		frames = append(frames, last)
	}
	return frames
}

func invalidCodec(kind, codec string) error {
	return audio.SetupError.Wrap(fmt.Errorf("invalid codec for %s encoder: %s", kind, codec), "encoder setup")
}
