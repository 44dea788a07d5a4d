// ABOUTME: Malgo-based microphone capture
// ABOUTME: Decodes miniaudio f32 capture buffers into mono windows
package input

import (
	"encoding/binary"
	"log"
	"math"
	"sync"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo captures from the default input device via miniaudio
type Malgo struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	fn       WindowFunc

	// callback scratch
	interleaved []float32
	mono        []float32

	mu     sync.Mutex
	logger *log.Logger
}

// NewMalgo creates a malgo capture input
func NewMalgo(logger *log.Logger) *Malgo {
	if logger == nil {
		logger = log.Default()
	}
	return &Malgo{logger: logger}
}

// Open starts capture
func (m *Malgo) Open(sampleRate, channels, window int, fn WindowFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return audio.InvariantError.New("malgo input already open")
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return audio.DeviceError.Wrap(err, "failed to initialize malgo context")
		}
		m.malgoCtx = ctx
	}

	m.channels = channels
	m.fn = fn
	m.interleaved = make([]float32, window*channels)
	m.mono = make([]float32, window)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(window)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pInputSamples, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return audio.DeviceError.Wrap(err, "failed to initialize capture device")
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return audio.DeviceError.Wrap(err, "failed to start capture device")
	}

	m.device = device
	m.logger.Printf("Audio input initialized: %dHz, %d channels, window %d (malgo)", sampleRate, channels, window)
	return nil
}

func (m *Malgo) dataCallback(in []byte, frames int) {
	n := frames * m.channels
	if cap(m.interleaved) < n {
		m.interleaved = make([]float32, n)
		m.mono = make([]float32, frames)
	}
	interleaved := m.interleaved[:n]
	for i := range interleaved {
		interleaved[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
	}
	mono := m.mono[:frames]
	downmix(mono, interleaved, m.channels)
	m.fn(mono)
}

// Close stops capture
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Printf("Warning: capture stop error: %v", err)
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
