//go:build portaudio

// ABOUTME: PortAudio microphone capture
// ABOUTME: Opens the default input stream with a fixed callback window
package input

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// PortAudio captures from the default input device
type PortAudio struct {
	stream *portaudio.Stream
	mono   []float32
	mu     sync.Mutex
}

// NewPortAudio creates a PortAudio capture input
func NewPortAudio() *PortAudio {
	return &PortAudio{}
}

// Open starts capture
func (p *PortAudio) Open(sampleRate, channels, window int, fn WindowFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to initialize portaudio")
	}

	p.mono = make([]float32, window)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), window, func(in []float32) {
		frames := len(in) / channels
		if cap(p.mono) < frames {
			p.mono = make([]float32, frames)
		}
		mono := p.mono[:frames]
		downmix(mono, in, channels)
		fn(mono)
	})
	if err != nil {
		portaudio.Terminate()
		return audio.DeviceError.Wrap(err, "failed to open input stream")
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return audio.DeviceError.Wrap(err, "failed to start input stream")
	}

	p.stream = stream
	return nil
}

// Close stops capture
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			return err
		}
		if err := p.stream.Close(); err != nil {
			return err
		}
		p.stream = nil
	}
	return portaudio.Terminate()
}
