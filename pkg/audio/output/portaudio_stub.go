//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

var errNoPortAudio = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output implementation (stub)
type PortAudio struct {
	volume
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() *PortAudio {
	p := &PortAudio{}
	p.SetVolume(100)
	return p
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate, channels int, r Renderer) error {
	return audio.DeviceError.Wrap(errNoPortAudio, "open")
}

// Suspend pauses the stream
func (p *PortAudio) Suspend() error {
	return audio.DeviceError.Wrap(errNoPortAudio, "suspend")
}

// Resume restarts the stream
func (p *PortAudio) Resume() error {
	return audio.DeviceError.Wrap(errNoPortAudio, "resume")
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
