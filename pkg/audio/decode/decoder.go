// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all wire decoders
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// Decoder decodes wire audio to PCM int16 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int16, error)

	// Close releases decoder resources
	Close() error
}

// New returns the decoder for format.Codec
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, audio.SetupError.New("no decoder for codec %q", format.Codec)
	}
}

func invalidCodec(kind, codec string) error {
	return audio.SetupError.Wrap(fmt.Errorf("invalid codec for %s decoder: %s", kind, codec), "decoder setup")
}
