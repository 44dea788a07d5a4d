// ABOUTME: Mixer render graph with sample clock, voices, gain, and sends
// ABOUTME: Render runs in the device callback; control calls take the same lock briefly
package mixer

import (
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/output"
)

// Config configures a Mixer
type Config struct {
	SampleRate int
	// Channels is the device channel count; the graph itself is mono
	Channels int
	Logger   *log.Logger
}

// Voice is a block scheduled to start at an absolute clock time. OnEnded, if
// set, is called off the render path once the last sample has been rendered.
// Voices dropped by ResetGain never call OnEnded.
type Voice struct {
	Samples []float32
	At      time.Duration
	Sends   []*Node
	OnEnded func()

	start int64
}

// Mixer is a mono render graph clocked by the frames it renders
type Mixer struct {
	config Config
	device output.Output

	mu        sync.Mutex
	frames    int64
	voices    []*Voice
	nodes     []*Node
	gain      gainStage
	dry       []float32
	ended     []func()
	suspended bool
	started   bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a mixer. device may be nil, in which case the caller drives
// Render directly.
func New(config Config, device output.Output) *Mixer {
	if config.SampleRate == 0 {
		config.SampleRate = 24000
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	m := &Mixer{
		config: config,
		device: device,
		gain:   newGainStage(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.dispatch()

	return m
}

// Start opens the device and begins rendering
func (m *Mixer) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if m.device == nil {
		return nil
	}
	if err := m.device.Open(m.config.SampleRate, m.config.Channels, m); err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// SampleRate returns the graph sample rate
func (m *Mixer) SampleRate() int {
	return m.config.SampleRate
}

// Now returns the output clock: the time of the next frame to be rendered
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return audio.Duration(int(m.frames), m.config.SampleRate)
}

// Play schedules a voice. A start time in the past is clamped to now.
func (m *Mixer) Play(v *Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v.start = audio.Frames(v.At, m.config.SampleRate)
	if v.start < m.frames {
		v.start = m.frames
	}
	m.voices = append(m.voices, v)
}

// Voices returns the number of voices that have not finished
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Connect attaches a send node downstream to the destination
func (m *Mixer) Connect(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.owner == m {
		return
	}
	n.owner = m
	m.nodes = append(m.nodes, n)
}

// Disconnect detaches a send node
func (m *Mixer) Disconnect(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.nodes {
		if existing == n {
			m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
			n.owner = nil
			return
		}
	}
}

// Gain returns the gain applied at the current clock
func (m *Mixer) Gain() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gain.at(m.frames)
}

// SetGain sets the gain at the current clock
func (m *Mixer) SetGain(value float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain.set(value)
}

// RampGain ramps linearly from the current gain to target over d
func (m *Mixer) RampGain(target float32, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain.ramp(m.frames, target, audio.Frames(d, m.config.SampleRate))
}

// ResetGain replaces the gain stage with a fresh unity stage. Every voice
// routed through the old stage is dropped without an end notification.
func (m *Mixer) ResetGain() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gain = newGainStage()
	dropped := len(m.voices)
	for i := range m.voices {
		m.voices[i] = nil
	}
	m.voices = m.voices[:0]
	if dropped > 0 {
		m.config.Logger.Printf("Gain stage reset, dropped %d voices", dropped)
	}
}

// Suspended reports whether the device is suspended
func (m *Mixer) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Suspend pauses the device clock
func (m *Mixer) Suspend() error {
	if m.device != nil {
		if err := m.device.Suspend(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()
	return nil
}

// Resume restarts a suspended device
func (m *Mixer) Resume() error {
	if m.device != nil {
		if err := m.device.Resume(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()
	return nil
}

// Render fills out with the next len(out) frames and advances the clock
func (m *Mixer) Render(out []float32) {
	n := len(out)

	m.mu.Lock()
	base := m.frames
	end := base + int64(n)

	m.dry = grow(m.dry, n)
	clear(m.dry)
	for _, nd := range m.nodes {
		nd.in = grow(nd.in, n)
		nd.out = grow(nd.out, n)
		clear(nd.in)
		clear(nd.out)
	}

	live := m.voices[:0]
	for _, v := range m.voices {
		vEnd := v.start + int64(len(v.Samples))
		from, to := max(base, v.start), min(end, vEnd)
		for f := from; f < to; f++ {
			s := v.Samples[f-v.start]
			i := f - base
			m.dry[i] += s
			for _, nd := range v.Sends {
				if nd.owner == m {
					nd.in[i] += s
				}
			}
		}
		if vEnd <= end {
			if v.OnEnded != nil {
				m.ended = append(m.ended, v.OnEnded)
			}
			continue
		}
		live = append(live, v)
	}
	for i := len(live); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = live

	for i := range out {
		out[i] = m.dry[i] * m.gain.at(base+int64(i))
	}
	for _, nd := range m.nodes {
		nd.proc.Process(nd.in[:n], nd.out[:n])
		for i := range out {
			out[i] += nd.out[i]
		}
	}

	m.frames = end
	pending := len(m.ended) > 0
	m.mu.Unlock()

	if pending {
		select {
		case m.notify <- struct{}{}:
		default:
		}
	}
}

// dispatch runs end notifications outside the render path
func (m *Mixer) dispatch() {
	defer m.wg.Done()

	for {
		select {
		case <-m.notify:
		case <-m.done:
			return
		}

		m.mu.Lock()
		fns := m.ended
		m.ended = nil
		m.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
	}
}

// Close stops notifications and releases the device
func (m *Mixer) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		if m.device != nil {
			err = m.device.Close()
		}
	})
	return err
}

// grow returns buf resliced to n, reallocating only when capacity is short
func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}
