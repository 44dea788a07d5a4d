// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit little-endian PCM to int16 samples
package decode

import (
	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// PCMDecoder decodes PCM audio. Packets that split a sample are handled by
// carrying the odd byte into the next Decode call.
type PCMDecoder struct {
	carry    byte
	hasCarry bool
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, invalidCodec("PCM", format.Codec)
	}

	if format.BitDepth != 0 && format.BitDepth != 16 {
		return nil, audio.SetupError.New("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	return &PCMDecoder{}, nil
}

// Decode converts PCM bytes to int16 samples
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	if d.hasCarry {
		joined := make([]byte, 0, len(data)+1)
		joined = append(joined, d.carry)
		data = append(joined, data...)
		d.hasCarry = false
	}

	if len(data)%2 == 1 {
		d.carry = data[len(data)-1]
		d.hasCarry = true
	}

	return audio.BytesToInt16(data), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
