// ABOUTME: Deterministic clock and output doubles for streamer tests
// ABOUTME: A sim advances both in lockstep and delivers end notifications
package stream

import (
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/mixer"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance fires due timers in deadline order, including ones armed by
// callbacks along the way
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at == due[j].at {
				return due[i].seq < due[j].seq
			}
			return due[i].at < due[j].at
		})
		next := due[0]
		next.fired = true
		c.now = max(c.now, next.at)
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// active counts timers that are armed and have not fired
func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeOutput struct {
	mu         sync.Mutex
	rate       int
	now        time.Duration
	voices     []*mixer.Voice
	ended      map[*mixer.Voice]bool
	nodes      []*mixer.Node
	gain       float32
	ramps      []float32
	resets     int
	suspended  bool
	resumeErr  error
	startErr   error
	startCalls int
}

func newFakeOutput(rate int) *fakeOutput {
	return &fakeOutput{rate: rate, gain: 1, ended: make(map[*mixer.Voice]bool)}
}

func (o *fakeOutput) SampleRate() int { return o.rate }

func (o *fakeOutput) Connect(n *mixer.Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes = append(o.nodes, n)
}

func (o *fakeOutput) Disconnect(n *mixer.Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.nodes {
		if existing == n {
			o.nodes = append(o.nodes[:i], o.nodes[i+1:]...)
			return
		}
	}
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Play(v *mixer.Voice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.voices = append(o.voices, v)
}

func (o *fakeOutput) SetGain(value float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gain = value
}

func (o *fakeOutput) RampGain(target float32, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gain = target
	o.ramps = append(o.ramps, target)
}

func (o *fakeOutput) ResetGain() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gain = 1
	o.resets++
	// voices routed through the old stage go silent without ending
	for _, v := range o.voices {
		o.ended[v] = true
	}
}

func (o *fakeOutput) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suspended
}

func (o *fakeOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resumeErr != nil {
		return o.resumeErr
	}
	o.suspended = false
	return nil
}

func (o *fakeOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
	return o.startErr
}

func (o *fakeOutput) played() []*mixer.Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*mixer.Voice(nil), o.voices...)
}

// tick moves the clock to now and collects the end callbacks that are due
func (o *fakeOutput) tick(now time.Duration) []func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.now = now
	var fns []func()
	for _, v := range o.voices {
		if o.ended[v] {
			continue
		}
		end := v.At + audio.Duration(len(v.Samples), o.rate)
		if end <= now {
			o.ended[v] = true
			if v.OnEnded != nil {
				fns = append(fns, v.OnEnded)
			}
		}
	}
	return fns
}

// sim drives a streamer against the fakes at 1ms resolution
type sim struct {
	t        *testing.T
	clock    *fakeClock
	out      *fakeOutput
	streamer *Streamer

	completions int
	maxArmed    int
}

// testConfig runs at 1kHz so a 100-sample block lasts 100ms
func testConfig() Config {
	return Config{
		SampleRate: 1000,
		BlockSize:  100,
		Logger:     log.New(io.Discard, "", 0),
	}
}

func newSim(t *testing.T, config Config) *sim {
	s := &sim{
		t:     t,
		clock: &fakeClock{},
		out:   newFakeOutput(config.SampleRate),
	}
	config.Clock = s.clock
	s.streamer = New(config, s.out, nil)
	s.streamer.OnComplete(func() { s.completions++ })

	if err := s.streamer.Start(t.Context()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { s.streamer.Close() })
	return s
}

func (s *sim) now() time.Duration {
	return s.out.Now()
}

func (s *sim) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Millisecond {
		for _, fn := range s.out.tick(s.out.Now() + time.Millisecond) {
			fn()
		}
		s.clock.Advance(time.Millisecond)
		if n := s.pacerArmed(); n > s.maxArmed {
			s.maxArmed = n
		}
	}
}

// pacerArmed counts armed timers other than a pending gain reset
func (s *sim) pacerArmed() int {
	n := s.clock.active()
	s.streamer.mu.Lock()
	if s.streamer.resetPending {
		n--
	}
	s.streamer.mu.Unlock()
	return n
}

// ramp returns n samples whose values count up from start
func ramp(start, n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(start + i)
	}
	return s
}
