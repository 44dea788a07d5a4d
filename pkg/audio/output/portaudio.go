//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output using PortAudio callbacks
package output

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// PortAudio output implementation
type PortAudio struct {
	volume

	stream    *portaudio.Stream
	suspended bool
	mono      []float32
	mu        sync.Mutex
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() *PortAudio {
	p := &PortAudio{}
	p.SetVolume(100)
	return p
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate, channels int, r Renderer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to initialize portaudio")
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), 0, func(out []float32) {
		p.mono = grow(p.mono, len(out)/channels)
		r.Render(p.mono)
		fanOut(out, p.mono, channels, p.multiplier())
	})
	if err != nil {
		portaudio.Terminate()
		return audio.DeviceError.Wrap(err, "failed to open stream")
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return audio.DeviceError.Wrap(err, "failed to start stream")
	}

	p.stream = stream
	return nil
}

// Suspend stops the stream
func (p *PortAudio) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return audio.DeviceError.Wrap(audio.ErrNotOpen, "suspend")
	}
	if err := p.stream.Stop(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to stop stream")
	}
	p.suspended = true
	return nil
}

// Resume restarts the stream
func (p *PortAudio) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return audio.DeviceError.Wrap(audio.ErrNotOpen, "resume")
	}
	if !p.suspended {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to restart stream")
	}
	p.suspended = false
	return nil
}

// Close releases resources
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
