// ABOUTME: Tests for scheduling, completion, and lifecycle transitions
// ABOUTME: Runs the streamer against a simulated clock at 1ms resolution
package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-live/pkg/tap"
	"github.com/joomcode/errorx"
	. "github.com/onsi/gomega"
)

const blockDur = 100 * time.Millisecond

func starts(voices []*mixer.Voice) []time.Duration {
	at := make([]time.Duration, len(voices))
	for i, v := range voices {
		at[i] = v.At
	}
	return at
}

func TestFirstBlockWaitsInitialBufferDelay(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.run(40 * time.Millisecond)
	s.streamer.AddSamples(ramp(0, 100))

	voices := s.out.played()
	g.Expect(voices).To(HaveLen(1))
	g.Expect(voices[0].At).To(Equal(140 * time.Millisecond))
	g.Expect(s.streamer.State()).To(Equal(Playing))
}

func TestScheduledDurationIndependentOfFragmentation(t *testing.T) {
	fragmentations := [][]int{
		{500},
		{1, 499},
		{99, 1, 200, 200},
		{250, 250},
		{7, 93, 100, 150, 50, 100},
	}

	for _, chunks := range fragmentations {
		g := NewGomegaWithT(t)
		s := newSim(t, testConfig())

		next := 0
		for _, n := range chunks {
			s.streamer.AddSamples(ramp(next, n))
			next += n
		}
		s.streamer.Complete()
		s.run(2 * time.Second)

		voices := s.out.played()
		g.Expect(voices).To(HaveLen(5), "chunks %v", chunks)

		first := voices[0].At
		for i, v := range voices {
			g.Expect(v.At).To(Equal(first+time.Duration(i)*blockDur), "chunks %v", chunks)
			g.Expect(v.Samples[0]).To(Equal(audio.Int16ToFloat(int16(i * 100))))
		}
		last := voices[len(voices)-1]
		g.Expect(last.At + blockDur - first).To(Equal(500 * time.Millisecond))
		g.Expect(s.completions).To(Equal(1))
		g.Expect(s.maxArmed).To(BeNumerically("<=", 1))
	}
}

func TestLookAheadBoundsCommittedAudio(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 1000))
	g.Expect(starts(s.out.played())).To(Equal([]time.Duration{100 * time.Millisecond}))

	for step := 0; step < 10; step++ {
		s.run(10 * time.Millisecond)
		for _, v := range s.out.played() {
			g.Expect(v.At).To(BeNumerically("<", s.now()+s.streamer.config.LookAhead+blockDur))
		}
	}
	g.Expect(s.streamer.pacer.mode).To(Equal(pacerPrecise))

	s.run(time.Second)
	g.Expect(s.out.played()).To(HaveLen(10))
	g.Expect(s.maxArmed).To(BeNumerically("<=", 1))
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 300))
	s.streamer.Complete()
	s.streamer.Complete()
	g.Expect(s.streamer.State()).To(Equal(Draining))

	s.run(250 * time.Millisecond)
	g.Expect(s.completions).To(BeZero())
	s.streamer.Complete()

	s.run(time.Second)
	g.Expect(s.out.played()).To(HaveLen(3))
	g.Expect(s.completions).To(Equal(1))
	g.Expect(s.streamer.State()).To(Equal(Idle))

	s.streamer.Complete()
	g.Expect(s.completions).To(Equal(1))
	g.Expect(s.streamer.Stats().Completions).To(Equal(int64(1)))
	g.Expect(s.clock.active()).To(BeZero())
}

func TestResumeWhileDrainingKeepsCompletion(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 300))
	s.streamer.Complete()
	s.run(150 * time.Millisecond)

	g.Expect(s.streamer.Resume()).To(Succeed())
	g.Expect(s.streamer.State()).To(Equal(Draining))

	s.run(2 * time.Second)
	g.Expect(s.out.played()).To(HaveLen(3))
	g.Expect(s.completions).To(Equal(1))
	g.Expect(s.streamer.State()).To(Equal(Idle))
}

func TestCompleteWithNothingPendingFiresImmediately(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.Complete()
	g.Expect(s.completions).To(Equal(1))
	g.Expect(s.streamer.State()).To(Equal(Idle))
}

func TestCompletePadsRemainder(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(1, 150))
	g.Expect(s.streamer.Stats().Remainder).To(Equal(50))

	s.streamer.Complete()
	g.Expect(s.streamer.Stats().Remainder).To(BeZero())
	s.run(time.Second)

	voices := s.out.played()
	g.Expect(voices).To(HaveLen(2))
	tail := voices[1].Samples
	g.Expect(tail).To(HaveLen(100))
	g.Expect(tail[49]).To(Equal(audio.Int16ToFloat(150)))
	g.Expect(tail[50:]).To(Equal(make([]float32, 50)))
	g.Expect(s.completions).To(Equal(1))
}

func TestUnderrunDoesNotComplete(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 100))
	s.run(500 * time.Millisecond)

	st := s.streamer.Stats()
	g.Expect(st.Underruns).To(Equal(int64(1)))
	g.Expect(st.State).To(Equal(Playing))
	g.Expect(s.completions).To(BeZero())
	g.Expect(s.streamer.pacer.mode).To(Equal(pacerPolling))
	g.Expect(s.maxArmed).To(BeNumerically("<=", 1))

	// late data starts straight away on the running timeline
	s.streamer.AddSamples(ramp(0, 100))
	voices := s.out.played()
	g.Expect(voices[len(voices)-1].At).To(Equal(s.now()))

	s.streamer.Complete()
	s.run(time.Second)
	g.Expect(s.completions).To(Equal(1))
}

func TestDataAfterCompleteReopensCycle(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 100))
	s.streamer.Complete()
	s.streamer.AddSamples(ramp(100, 100))
	g.Expect(s.streamer.State()).To(Equal(Playing))

	s.run(time.Second)
	g.Expect(s.completions).To(BeZero())

	s.streamer.Complete()
	g.Expect(s.completions).To(Equal(1))
	g.Expect(starts(s.out.played())).To(Equal([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond}))
}

func TestPacerModes(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 50))
	g.Expect(s.streamer.pacer.mode).To(Equal(pacerPolling))
	g.Expect(s.clock.active()).To(Equal(1))

	s.streamer.AddSamples(ramp(50, 250))
	g.Expect(s.streamer.pacer.mode).To(Equal(pacerPrecise))
	g.Expect(s.clock.active()).To(Equal(1))
	g.Expect(s.streamer.Stats().QueueDepth).To(Equal(2))
}

func TestStopThenResumeRespectsInitialDelay(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 1000))
	s.run(250 * time.Millisecond)
	before := len(s.out.played())

	s.streamer.Stop()
	g.Expect(s.streamer.State()).To(Equal(Stopping))
	g.Expect(s.out.ramps).To(Equal([]float32{0}))

	g.Expect(s.streamer.Resume()).To(Succeed())
	g.Expect(s.streamer.State()).To(Equal(Idle))
	g.Expect(s.out.resets).To(Equal(1))
	g.Expect(s.out.gain).To(Equal(float32(1)))

	stopAt := s.now()
	s.run(20 * time.Millisecond)
	s.streamer.AddSamples(ramp(0, 100))

	voices := s.out.played()[before:]
	g.Expect(voices).To(HaveLen(1))
	g.Expect(voices[0].At).To(BeNumerically(">=", stopAt+s.streamer.config.InitialBufferDelay))

	// the cancelled reset never fires
	s.run(time.Second)
	g.Expect(s.out.resets).To(Equal(1))
	g.Expect(s.completions).To(BeZero())
}

func TestStopFadesThenResetsGain(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.AddSamples(ramp(0, 450))
	s.run(150 * time.Millisecond)
	s.streamer.Complete()
	s.streamer.Stop()
	s.streamer.Stop()

	st := s.streamer.Stats()
	g.Expect(st.QueueDepth).To(BeZero())
	g.Expect(st.Remainder).To(BeZero())
	g.Expect(s.out.ramps).To(Equal([]float32{0}))

	s.streamer.AddSamples(ramp(0, 100))
	g.Expect(s.streamer.Stats().Discarded).To(Equal(int64(100)))

	s.run(199 * time.Millisecond)
	g.Expect(s.out.resets).To(BeZero())
	s.run(time.Millisecond)
	g.Expect(s.out.resets).To(Equal(1))
	g.Expect(s.streamer.State()).To(Equal(Idle))

	s.run(time.Second)
	g.Expect(s.completions).To(BeZero())
}

func TestStopWhileIdleOnlyResetsGain(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	s.streamer.Stop()
	s.run(300 * time.Millisecond)

	g.Expect(s.out.resets).To(Equal(1))
	g.Expect(s.out.played()).To(BeEmpty())
	g.Expect(s.streamer.State()).To(Equal(Idle))
}

func TestWriteCarriesOddByte(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	n, err := s.streamer.Write([]byte{0x01})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(n).To(Equal(1))
	g.Expect(s.streamer.Stats().Received).To(BeZero())

	n, err = s.streamer.Write([]byte{0x00, 0x02, 0x00})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(n).To(Equal(3))

	g.Expect(s.streamer.Stats().Received).To(Equal(int64(2)))
	g.Expect(s.streamer.acc.remainder).To(Equal([]float32{audio.Int16ToFloat(1), audio.Int16ToFloat(2)}))
}

func TestBackpressure(t *testing.T) {
	tests := []struct {
		name     string
		overflow Overflow
		first    []float32
	}{
		{"drop newest", DropNewest, []float32{audio.Int16ToFloat(0), audio.Int16ToFloat(100), audio.Int16ToFloat(200)}},
		{"drop oldest", DropOldest, []float32{audio.Int16ToFloat(0), audio.Int16ToFloat(300), audio.Int16ToFloat(400)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			config := testConfig()
			config.MaxQueuedBlocks = 2
			config.Overflow = tt.overflow
			s := newSim(t, config)

			// the first block is scheduled immediately and leaves the queue
			s.streamer.AddSamples(ramp(0, 100))
			s.streamer.AddSamples(ramp(100, 400))
			g.Expect(s.streamer.Stats().Dropped).To(Equal(int64(2)))

			s.streamer.Complete()
			s.run(time.Second)

			var got []float32
			for _, v := range s.out.played() {
				got = append(got, v.Samples[0])
			}
			g.Expect(got).To(Equal(tt.first))
			g.Expect(s.completions).To(Equal(1))
		})
	}
}

func TestSchedulingBeforeStartPanics(t *testing.T) {
	out := newFakeOutput(1000)
	config := testConfig()
	config.Clock = &fakeClock{}
	s := New(config, out, nil)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errorx.IsOfType(err, audio.InvariantError) {
			t.Errorf("expected invariant panic, got %v", r)
		}
	}()
	s.AddSamples(ramp(0, 100))
}

func TestDeviceErrors(t *testing.T) {
	g := NewGomegaWithT(t)

	out := newFakeOutput(1000)
	out.startErr = errors.New("no device")
	config := testConfig()
	config.Clock = &fakeClock{}
	s := New(config, out, nil)

	err := s.Start(t.Context())
	g.Expect(audio.IsDevice(err)).To(BeTrue())

	out.startErr = nil
	g.Expect(s.Start(t.Context())).To(Succeed())

	out.suspended = true
	out.resumeErr = errors.New("device lost")
	err = s.Resume()
	g.Expect(audio.IsDevice(err)).To(BeTrue())

	out.resumeErr = nil
	g.Expect(s.Resume()).To(Succeed())
	g.Expect(out.Suspended()).To(BeFalse())
}

func TestTapsReceiveScheduledBlocks(t *testing.T) {
	g := NewGomegaWithT(t)
	s := newSim(t, testConfig())

	levels := make(chan tap.Message, 16)
	handler := func(m tap.Message) { levels <- m }
	g.Expect(s.streamer.AddTap("meter", tap.Unit{Kind: "vumeter"}, handler)).To(Succeed())
	g.Expect(s.streamer.AddTap("meter", tap.Unit{Kind: "vumeter"}, handler)).To(Succeed())
	g.Expect(s.out.nodes).To(HaveLen(1))

	err := s.streamer.AddTap("fx", tap.Unit{Kind: "reverb"}, handler)
	g.Expect(audio.IsSetup(err)).To(BeTrue())

	s.streamer.AddSamples(ramp(0, 100))
	voices := s.out.played()
	g.Expect(voices).To(HaveLen(1))
	g.Expect(voices[0].Sends).To(Equal(s.out.nodes))
}

func rampCount(o *fakeOutput) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ramps)
}

func TestContextCancelStops(t *testing.T) {
	g := NewGomegaWithT(t)
	config := testConfig()
	config.Clock = &fakeClock{}
	out := newFakeOutput(config.SampleRate)
	streamer := New(config, out, nil)
	defer streamer.Close()

	ctx, cancel := context.WithCancel(t.Context())
	g.Expect(streamer.Start(ctx)).To(Succeed())
	streamer.AddSamples(ramp(0, 300))

	cancel()
	g.Eventually(streamer.State).Should(Equal(Stopping))
	g.Expect(rampCount(out)).To(Equal(1))
}

func TestStopAfterCloseIsIgnored(t *testing.T) {
	g := NewGomegaWithT(t)
	clock := &fakeClock{}
	config := testConfig()
	config.Clock = clock
	out := newFakeOutput(config.SampleRate)
	streamer := New(config, out, nil)

	ctx, cancel := context.WithCancel(t.Context())
	g.Expect(streamer.Start(ctx)).To(Succeed())
	streamer.AddSamples(ramp(0, 300))

	g.Expect(streamer.Close()).To(Succeed())
	g.Expect(streamer.Close()).To(Succeed())
	cancel()
	streamer.Stop()

	g.Consistently(func() int { return rampCount(out) }, 50*time.Millisecond).Should(BeZero())
	g.Expect(streamer.State()).To(Equal(Playing))
	g.Expect(clock.active()).To(BeZero())
}

func TestTimelineStaysOnSampleBoundaries(t *testing.T) {
	config := Config{SampleRate: 44100, BlockSize: 7680}.withDefaults()

	// 44.1kHz blocks are not a whole number of nanoseconds
	if d := config.BlockDuration(); audio.Duration(config.BlockSize*3, 44100) == 3*d {
		t.Fatalf("expected a truncated block duration, got %v", d)
	}

	var at time.Duration
	for k := 1; k <= 20000; k++ {
		at = config.advance(at)
		if got, want := audio.Frames(at, config.SampleRate), int64(k*config.BlockSize); got != want {
			t.Fatalf("block %d starts at frame %d, expected %d", k, got, want)
		}
	}
}
