// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo; the device callback pulls from the Renderer
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	volume

	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	renderer   Renderer
	sampleRate int
	channels   int
	suspended  bool

	// render scratch, touched only by the device callback
	mono []float32

	mu     sync.Mutex
	logger *log.Logger
}

// NewMalgo creates a new Malgo output
func NewMalgo(logger *log.Logger) *Malgo {
	if logger == nil {
		logger = log.Default()
	}
	m := &Malgo{logger: logger}
	m.SetVolume(100)
	return m
}

// Open initializes the output device with specified format
func (m *Malgo) Open(sampleRate, channels int, r Renderer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return audio.InvariantError.New("malgo output already open")
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return audio.DeviceError.Wrap(err, "failed to initialize malgo context")
		}
		m.malgoCtx = ctx
	}

	m.renderer = r
	m.sampleRate = sampleRate
	m.channels = channels
	m.mono = make([]float32, sampleRate/10)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return audio.DeviceError.Wrap(err, "failed to initialize playback device")
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return audio.DeviceError.Wrap(err, "failed to start device")
	}

	m.device = device
	m.logger.Printf("Audio output initialized: %dHz, %d channels, f32 (malgo)", sampleRate, channels)

	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	m.mono = grow(m.mono, int(frameCount))
	m.renderer.Render(m.mono)
	fanOutBytes(pOutput, m.mono, m.channels, m.multiplier())
}

// Suspend stops the device; the render clock halts until Resume
func (m *Malgo) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return audio.DeviceError.Wrap(audio.ErrNotOpen, "suspend")
	}
	if m.suspended {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to stop device")
	}
	m.suspended = true
	return nil
}

// Resume restarts a suspended device
func (m *Malgo) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return audio.DeviceError.Wrap(audio.ErrNotOpen, "resume")
	}
	if !m.suspended {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to restart device")
	}
	m.suspended = false
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Printf("Warning: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	return nil
}

func (m *Malgo) String() string {
	return fmt.Sprintf("malgo(%dHz/%dch)", m.sampleRate, m.channels)
}
