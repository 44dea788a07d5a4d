// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int16 samples to 16-bit little-endian PCM bytes
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct{}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, invalidCodec("PCM", format.Codec)
	}

	if format.BitDepth != 0 && format.BitDepth != 16 {
		return nil, audio.SetupError.Wrap(
			fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth), "encoder setup")
	}

	return &PCMEncoder{}, nil
}

// Encode converts int16 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int16) ([]byte, error) {
	return audio.Int16ToBytes(samples), nil
}

// FrameSize returns 0; PCM accepts any length
func (e *PCMEncoder) FrameSize() int {
	return 0
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
