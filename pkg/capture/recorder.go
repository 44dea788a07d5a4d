// ABOUTME: Recorder wires an input device to the frame encoder
// ABOUTME: Delivers each completed frame as PCM16LE bytes on a control goroutine
package capture

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/input"
)

// Config configures a Recorder
type Config struct {
	SampleRate int
	// Channels captured from the device; frames are always mono
	Channels int
	// FrameSize is the outbound frame length in samples
	FrameSize int
	// Window is the device callback length in samples
	Window int
	// Backlog bounds frames waiting for delivery
	Backlog int
	Logger  *log.Logger
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 2048
	}
	if c.Window <= 0 {
		c.Window = 128
	}
	if c.Backlog <= 0 {
		c.Backlog = 32
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Recorder captures microphone audio into fixed-size frames
type Recorder struct {
	config Config
	device input.Input
	logger *log.Logger

	mu      sync.Mutex
	running bool
	encoder *Encoder
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	frames           atomic.Int64
	conversionErrors atomic.Int64
	level            atomic.Uint32
}

// NewRecorder creates a recorder reading from device
func NewRecorder(config Config, device input.Input) *Recorder {
	config = config.withDefaults()
	return &Recorder{
		config: config,
		device: device,
		logger: config.Logger,
	}
}

// Start opens the device and calls onData with each completed frame as
// PCM16LE bytes. onData runs on the recorder's goroutine, never in the device
// callback.
func (r *Recorder) Start(ctx context.Context, onData func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	enc := NewEncoder(r.config.FrameSize, r.config.Backlog)
	if err := r.device.Open(r.config.SampleRate, r.config.Channels, r.config.Window, enc.Process); err != nil {
		return audio.DeviceError.Wrap(err, "failed to open capture device")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.encoder = enc
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.deliver(ctx, enc, onData)

	r.logger.Printf("Recording started: %d Hz, %d-sample frames", r.config.SampleRate, r.config.FrameSize)
	return nil
}

func (r *Recorder) deliver(ctx context.Context, enc *Encoder, onData func([]byte)) {
	defer r.wg.Done()

	for {
		select {
		case chunk := <-enc.Chunks():
			if chunk.ConversionErrors > 0 {
				r.conversionErrors.Add(int64(chunk.ConversionErrors))
				r.logger.Printf("Capture: %d samples could not be converted, sent as silence", chunk.ConversionErrors)
			}
			r.frames.Add(1)
			r.level.Store(math.Float32bits(audio.Level(chunk.Samples)))
			if onData != nil {
				onData(audio.Int16ToBytes(chunk.Samples))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop closes the device. The partial frame is discarded.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		r.logger.Printf("Warning: recorder stopped while not recording")
		return nil
	}

	err := r.device.Close()
	r.cancel()
	r.wg.Wait()
	r.running = false

	if dropped := r.encoder.Dropped(); dropped > 0 {
		r.logger.Printf("Recording stopped, %d frames dropped for lack of a reader", dropped)
	} else {
		r.logger.Printf("Recording stopped")
	}
	r.encoder = nil

	if err != nil {
		return audio.DeviceError.Wrap(err, "failed to close capture device")
	}
	return nil
}

// Recording reports whether the recorder is running
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Level returns the RMS level of the most recent frame
func (r *Recorder) Level() float32 {
	return math.Float32frombits(r.level.Load())
}

// Frames returns the number of frames delivered
func (r *Recorder) Frames() int64 {
	return r.frames.Load()
}

// ConversionErrors returns the number of samples sent as silence
func (r *Recorder) ConversionErrors() int64 {
	return r.conversionErrors.Load()
}
