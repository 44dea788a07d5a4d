//go:build !portaudio

// ABOUTME: PortAudio capture stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package input

import (
	"errors"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// PortAudio capture input (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio capture input
func NewPortAudio() *PortAudio {
	return &PortAudio{}
}

// Open starts capture
func (p *PortAudio) Open(sampleRate, channels, window int, fn WindowFunc) error {
	return audio.DeviceError.Wrap(errors.New("PortAudio support not enabled (build with -tags portaudio)"), "open")
}

// Close stops capture
func (p *PortAudio) Close() error {
	return nil
}
