// ABOUTME: Oto-based audio output implementation
// ABOUTME: Feeds an oto player from a reader that pulls from the Renderer
package output

import (
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// Oto output implementation using oto library
type Oto struct {
	volume

	otoCtx    *oto.Context
	player    *oto.Player
	channels  int
	suspended bool

	mu     sync.Mutex
	logger *log.Logger
}

// NewOto creates a new Oto output
func NewOto(logger *log.Logger) *Oto {
	if logger == nil {
		logger = log.Default()
	}
	o := &Oto{logger: logger}
	o.SetVolume(100)
	return o
}

// Open initializes the output device. oto allows one context per process, so
// an Oto output can be opened once.
func (o *Oto) Open(sampleRate, channels int, r Renderer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		return audio.InvariantError.New("oto output already open")
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   20 * time.Millisecond,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return audio.DeviceError.Wrap(err, "failed to create oto context")
	}
	<-readyChan

	o.otoCtx = ctx
	o.channels = channels

	o.player = o.otoCtx.NewPlayer(&renderReader{renderer: r, channels: channels, gain: o.multiplier})
	o.player.SetBufferSize(sampleRate / 50 * channels * 4)
	o.player.Play()

	o.logger.Printf("Audio output initialized: %dHz, %d channels (oto)", sampleRate, channels)

	return nil
}

// Suspend pauses the oto context
func (o *Oto) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil {
		return audio.DeviceError.Wrap(audio.ErrNotOpen, "suspend")
	}
	if err := o.otoCtx.Suspend(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to suspend oto context")
	}
	o.suspended = true
	return nil
}

// Resume resumes the oto context
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil {
		return audio.DeviceError.Wrap(audio.ErrNotOpen, "resume")
	}
	if !o.suspended {
		return nil
	}
	if err := o.otoCtx.Resume(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to resume oto context")
	}
	o.suspended = false
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			o.logger.Printf("Warning: oto player close error: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.logger.Printf("Warning: oto suspend error: %v", err)
		}
	}
	return nil
}

// renderReader adapts a Renderer to the io.Reader oto pulls from
type renderReader struct {
	renderer Renderer
	channels int
	gain     func() float32
	mono     []float32
}

func (rr *renderReader) Read(p []byte) (int, error) {
	frames := len(p) / (4 * rr.channels)
	if frames == 0 {
		return 0, nil
	}
	rr.mono = grow(rr.mono, frames)
	rr.renderer.Render(rr.mono)
	fanOutBytes(p, rr.mono, rr.channels, rr.gain())
	return frames * 4 * rr.channels, nil
}
