// ABOUTME: Streamer accumulates inbound PCM, schedules blocks, and runs the lifecycle
// ABOUTME: Every public call and timer callback is serialized by one mutex
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-live/pkg/tap"
)

// Output is the output context blocks are scheduled onto. *mixer.Mixer
// implements it.
type Output interface {
	tap.Context

	// Now returns the output clock
	Now() time.Duration
	Play(v *mixer.Voice)

	SetGain(value float32)
	RampGain(target float32, d time.Duration)
	// ResetGain replaces the gain stage, silencing everything routed through it
	ResetGain()

	Suspended() bool
	Resume() error
	Start() error
}

// Stats is a snapshot of streamer counters
type Stats struct {
	State State

	// Samples
	Received  int64
	Discarded int64
	Remainder int

	// Blocks
	Queued     int64
	Scheduled  int64
	Dropped    int64
	QueueDepth int

	Underruns   int64
	Completions int64
}

// Streamer turns inbound PCM chunks into a continuous scheduled signal
type Streamer struct {
	config   Config
	out      Output
	registry *tap.Registry
	logger   *log.Logger

	mu            sync.Mutex
	started       bool
	closed        bool
	done          chan struct{}
	state         State
	acc           accumulator
	queue         BlockQueue
	scheduledTime time.Duration
	last          *mixer.Voice
	complete      bool
	fired         bool
	onComplete    func()

	carry    byte
	hasCarry bool

	pacer pacer

	resetTimer   Timer
	resetGen     uint64
	resetPending bool

	stats Stats
}

// New creates a streamer scheduling onto out. Taps are registered in
// registry; nil creates a private registry with the default catalog.
func New(config Config, out Output, registry *tap.Registry) *Streamer {
	config = config.withDefaults()
	if registry == nil {
		registry = tap.NewRegistry(nil, config.Logger)
	}

	s := &Streamer{
		config:   config,
		out:      out,
		registry: registry,
		logger:   config.Logger,
		acc:      newAccumulator(config.BlockSize),
		done:     make(chan struct{}),
	}
	s.pacer = pacer{clock: config.Clock, fire: s.onPacer}

	return s
}

// Config returns the effective configuration
func (s *Streamer) Config() Config {
	return s.config
}

// Start starts the output. When ctx is done before Close the streamer stops.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.out.Start(); err != nil {
		return audio.DeviceError.Wrap(err, "failed to start output")
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	s.logger.Printf("Streamer started: %d Hz, %d-sample blocks (%v), look-ahead %v",
		s.config.SampleRate, s.config.BlockSize, s.config.BlockDuration(), s.config.LookAhead)
	return nil
}

// OnComplete sets the completion hook. The last registration wins.
func (s *Streamer) OnComplete(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// AddTap registers handler on the tap called name, loading unit the first
// time the name is seen. Blocks scheduled afterwards are routed to it.
func (s *Streamer) AddTap(name string, unit tap.Unit, handler tap.Handler) error {
	_, err := s.registry.Add(s.out, name, unit, handler)
	return err
}

// Write accepts PCM16 little-endian bytes. An odd trailing byte is held
// until the next write.
func (s *Streamer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	data := p
	if s.hasCarry {
		data = make([]byte, 0, len(p)+1)
		data = append(data, s.carry)
		data = append(data, p...)
		s.hasCarry = false
	}
	if len(data)%2 == 1 {
		s.carry = data[len(data)-1]
		s.hasCarry = true
		data = data[:len(data)-1]
	}
	done := s.addLocked(audio.BytesToInt16(data))
	s.unlock(done)

	return len(p), nil
}

// AddSamples accepts one inbound chunk
func (s *Streamer) AddSamples(samples []int16) {
	s.mu.Lock()
	done := s.addLocked(samples)
	s.unlock(done)
}

func (s *Streamer) addLocked(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}
	s.stats.Received += int64(len(samples))

	switch s.state {
	case Stopping:
		s.stats.Discarded += int64(len(samples))
		return false
	case Idle:
		s.state = Playing
		s.complete, s.fired = false, false
		s.scheduledTime = max(s.scheduledTime, s.out.Now()+s.config.InitialBufferDelay)
	case Draining:
		// more data after Complete opens a new cycle
		s.state = Playing
		s.complete, s.fired = false, false
	}

	for _, b := range s.acc.add(samples) {
		s.enqueueLocked(b)
	}
	return s.scheduleLocked()
}

func (s *Streamer) enqueueLocked(b audio.Block) {
	if limit := s.config.MaxQueuedBlocks; limit > 0 && s.queue.Len() >= limit {
		s.stats.Dropped++
		if s.config.Overflow == DropNewest {
			s.logger.Printf("Playback queue full (%d blocks), dropping newest block", limit)
			return
		}
		s.queue.Pop()
		s.logger.Printf("Playback queue full (%d blocks), dropping oldest block", limit)
	}
	s.queue.Push(b)
	s.stats.Queued++
}

// scheduleLocked is the scheduling pass. It reports whether the stream
// finished draining.
func (s *Streamer) scheduleLocked() bool {
	if !s.started {
		panic(audio.InvariantError.New("scheduling pass before Start"))
	}
	if s.state != Playing && s.state != Draining {
		return false
	}

	now := s.out.Now()

	for s.queue.Len() > 0 && s.scheduledTime < now+s.config.LookAhead {
		v := &mixer.Voice{
			Samples: s.queue.Pop(),
			At:      max(s.scheduledTime, now),
			Sends:   s.registry.Nodes(s.out),
		}
		if s.queue.Len() == 0 {
			s.last = v
			v.OnEnded = func() { s.voiceEnded(v) }
		}
		s.out.Play(v)
		s.scheduledTime = s.config.advance(v.At)
		s.stats.Scheduled++
	}

	switch {
	case s.queue.Len() == 0 && s.acc.len() == 0 && s.complete:
		s.pacer.cancel()
		if s.last == nil {
			return s.finishLocked()
		}
	case s.queue.Len() == 0:
		s.pacer.poll(s.config.IdlePollInterval)
	default:
		s.pacer.precise(s.scheduledTime - now - s.config.RearmLead)
	}
	return false
}

func (s *Streamer) onPacer(gen uint64) {
	s.mu.Lock()
	if !s.pacer.claim(gen) {
		s.mu.Unlock()
		return
	}
	done := s.scheduleLocked()
	s.unlock(done)
}

// voiceEnded runs when the last block queued at scheduling time finishes
func (s *Streamer) voiceEnded(v *mixer.Voice) {
	s.mu.Lock()
	if s.last != v || s.queue.Len() > 0 {
		s.mu.Unlock()
		return
	}
	s.last = nil

	var done bool
	switch {
	case s.complete:
		done = s.finishLocked()
	case s.state == Playing:
		s.stats.Underruns++
		s.logger.Printf("Playback underrun at %v: queue empty, %d samples pending", s.out.Now(), s.acc.len())
	}
	s.unlock(done)
}

// finishLocked ends a completion cycle. It reports true at most once per cycle.
func (s *Streamer) finishLocked() bool {
	if s.fired {
		return false
	}
	s.fired = true
	s.state = Idle
	s.last = nil
	s.stats.Completions++
	return true
}

// unlock releases the lock and then runs the completion hook if done
func (s *Streamer) unlock(done bool) {
	hook := s.onComplete
	s.mu.Unlock()

	if done && hook != nil {
		hook()
	}
}

// Complete marks the end of the inbound stream. A partial block is padded
// with silence and played; the completion hook fires once the last block ends.
func (s *Streamer) Complete() {
	s.mu.Lock()

	if s.state == Stopping {
		s.mu.Unlock()
		s.logger.Printf("Complete ignored while stopping")
		return
	}
	if s.fired {
		s.mu.Unlock()
		return
	}

	s.complete = true
	s.state = Draining

	var done bool
	switch {
	case s.acc.len() > 0:
		s.enqueueLocked(s.acc.pad())
		done = s.scheduleLocked()
	case s.queue.Len() == 0 && s.last == nil:
		s.pacer.cancel()
		done = s.finishLocked()
	default:
		done = s.scheduleLocked()
	}
	s.unlock(done)
}

// Stop discards everything pending and fades the output out. The gain stage
// is replaced once the fade has finished. Stop never fires the completion
// hook.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Stopping || s.closed {
		return
	}

	dropped := s.queue.Len()
	s.state = Stopping
	s.queue.Clear()
	s.acc.reset()
	s.hasCarry = false
	s.pacer.cancel()
	s.last = nil
	s.complete, s.fired = true, true
	s.scheduledTime = s.out.Now()

	s.out.RampGain(0, s.config.FadeOut)
	s.armGainResetLocked()

	s.logger.Printf("Playback stopped, discarded %d queued blocks", dropped)
}

func (s *Streamer) armGainResetLocked() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetGen++
	gen := s.resetGen
	s.resetPending = true
	s.resetTimer = s.config.Clock.AfterFunc(s.config.GainResetDelay, func() { s.gainReset(gen) })
}

func (s *Streamer) gainReset(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.resetGen || !s.resetPending {
		return
	}
	s.resetLocked()
}

func (s *Streamer) resetLocked() {
	s.resetPending = false
	s.resetTimer = nil
	s.out.ResetGain()
	if s.state == Stopping {
		s.state = Idle
	}
}

// Resume re-arms the timeline for the next turn. A suspended output is
// resumed first; failure is returned as a device error.
func (s *Streamer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out.Suspended() {
		if err := s.out.Resume(); err != nil {
			return audio.DeviceError.Wrap(err, "failed to resume output")
		}
	}

	if s.resetPending {
		s.resetTimer.Stop()
		s.resetGen++
		s.resetLocked()
	}
	if s.state == Stopping {
		s.state = Idle
	}

	// a draining turn keeps its completion
	if s.state != Draining {
		s.complete, s.fired = false, false
	}
	s.scheduledTime = max(s.scheduledTime, s.out.Now()+s.config.InitialBufferDelay)
	s.out.SetGain(1)

	return nil
}

// State returns the lifecycle state
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the counters
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.State = s.state
	st.Remainder = s.acc.len()
	st.QueueDepth = s.queue.Len()
	return st
}

// Close disarms timers and releases the taps. Stop is a no-op afterwards.
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.pacer.cancel()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.resetGen++
	s.mu.Unlock()

	return s.registry.Close(s.out)
}
