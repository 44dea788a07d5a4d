// ABOUTME: Audio output interface definition
// ABOUTME: Common pull-model interface for audio playback backends
package output

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// Renderer produces mono float32 samples on demand. Render is called from the
// device callback and must not block.
type Renderer interface {
	Render(out []float32)
}

// Output represents an audio output device that pulls from a Renderer
type Output interface {
	// Open initializes the device and starts pulling from r
	Open(sampleRate, channels int, r Renderer) error

	// Suspend pauses the device clock; Render is not called while suspended
	Suspend() error

	// Resume restarts a suspended device
	Resume() error

	// Close releases output resources
	Close() error
}

// Volume is implemented by outputs with a software volume stage
type Volume interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}

// volume holds software volume state read from the device callback
type volume struct {
	level atomic.Int32
	muted atomic.Bool
}

// SetVolume sets the volume (0-100)
func (v *volume) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.level.Store(int32(level))
}

// SetMuted sets mute state
func (v *volume) SetMuted(muted bool) {
	v.muted.Store(muted)
}

// GetVolume returns current volume
func (v *volume) GetVolume() int {
	return int(v.level.Load())
}

// IsMuted returns mute state
func (v *volume) IsMuted() bool {
	return v.muted.Load()
}

func (v *volume) multiplier() float32 {
	return getVolumeMultiplier(v.GetVolume(), v.IsMuted())
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(volume) / 100
}

// fanOut copies mono samples to every channel of an interleaved float buffer,
// applying gain and clipping to [-1, 1]
func fanOut(dst, mono []float32, channels int, gain float32) {
	for i, s := range mono {
		v := clip(s * gain)
		for c := 0; c < channels; c++ {
			dst[i*channels+c] = v
		}
	}
}

// fanOutBytes is fanOut for float32 little-endian byte buffers
func fanOutBytes(dst []byte, mono []float32, channels int, gain float32) {
	for i, s := range mono {
		bits := math.Float32bits(clip(s * gain))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint32(dst[(i*channels+c)*4:], bits)
		}
	}
}

func clip(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// grow returns buf resliced to n, reallocating only when capacity is short
func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}
