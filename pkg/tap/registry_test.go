// ABOUTME: Registry specs for tap idempotence, handler order, and load failures
// ABOUTME: Drives a real mixer without a device so the render path runs in-process
package tap_test

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-live/pkg/tap"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// pulse posts one message per render quantum it sees signal in
type pulse struct{ closed bool }

func (p *pulse) Process(in, out []float32, port *tap.Port) {
	for _, s := range in {
		if s != 0 {
			port.Post(tap.Message{Kind: "pulse", Value: float64(len(in))})
			return
		}
	}
}

func (p *pulse) Close() error {
	p.closed = true
	return nil
}

type recorded struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorded) handler(id string) tap.Handler {
	return func(tap.Message) {
		r.mu.Lock()
		r.calls = append(r.calls, id)
		r.mu.Unlock()
	}
}

func (r *recorded) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func signal(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.5
	}
	return s
}

var _ = Describe("Registry", func() {
	var (
		m        *mixer.Mixer
		registry *tap.Registry
		units    []*pulse
		logger   = log.New(io.Discard, "", 0)
	)

	BeforeEach(func() {
		units = nil
		m = mixer.New(mixer.Config{SampleRate: 1000, Logger: logger}, nil)
		catalog := tap.DefaultCatalog()
		catalog["pulse"] = func(int, map[string]string) (tap.Processor, error) {
			p := &pulse{}
			units = append(units, p)
			return p, nil
		}
		catalog["broken"] = func(int, map[string]string) (tap.Processor, error) {
			return nil, errors.New("no such device")
		}
		registry = tap.NewRegistry(catalog, logger)
	})

	AfterEach(func() {
		Expect(registry.Close(m)).To(Succeed())
		Expect(m.Close()).To(Succeed())
	})

	Describe("adding the same name twice", func() {
		It("creates one node and dispatches to both handlers in order", func() {
			calls := &recorded{}

			first, err := registry.Add(m, "meter", tap.Unit{Kind: "pulse"}, calls.handler("first"))
			Expect(err).NotTo(HaveOccurred())
			second, err := registry.Add(m, "meter", tap.Unit{Kind: "pulse"}, calls.handler("second"))
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(BeIdenticalTo(first))
			Expect(units).To(HaveLen(1))
			Expect(registry.Nodes(m)).To(HaveLen(1))
			Expect(first.Handlers()).To(Equal(2))

			m.Play(&mixer.Voice{Samples: signal(4), Sends: registry.Nodes(m)})
			m.Render(make([]float32, 4))

			Eventually(calls.get).Should(Equal([]string{"first", "second"}))
		})
	})

	Describe("a unit that fails to load", func() {
		It("returns a setup error", func() {
			_, err := registry.Add(m, "bad", tap.Unit{Kind: "broken"}, nil)
			Expect(err).To(HaveOccurred())
			Expect(audio.IsSetup(err)).To(BeTrue())

			_, err = registry.Add(m, "missing", tap.Unit{Kind: "reverb"}, nil)
			Expect(audio.IsSetup(err)).To(BeTrue())
		})

		It("leaves existing taps running", func() {
			calls := &recorded{}
			_, err := registry.Add(m, "meter", tap.Unit{Kind: "pulse"}, calls.handler("meter"))
			Expect(err).NotTo(HaveOccurred())

			_, err = registry.Add(m, "bad", tap.Unit{Kind: "broken"}, nil)
			Expect(err).To(HaveOccurred())

			_, ok := registry.Lookup(m, "bad")
			Expect(ok).To(BeFalse())
			Expect(registry.Nodes(m)).To(HaveLen(1))

			m.Play(&mixer.Voice{Samples: signal(2), Sends: registry.Nodes(m)})
			m.Render(make([]float32, 2))
			Eventually(calls.get).Should(Equal([]string{"meter"}))
		})
	})

	Describe("Nodes", func() {
		It("returns nodes in registration order", func() {
			a, err := registry.Add(m, "a", tap.Unit{Kind: "pulse"}, nil)
			Expect(err).NotTo(HaveOccurred())
			b, err := registry.Add(m, "b", tap.Unit{Kind: "passthrough"}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Nodes(m)).To(Equal([]*mixer.Node{a.Node(), b.Node()}))
		})

		It("keeps contexts apart", func() {
			other := mixer.New(mixer.Config{SampleRate: 1000, Logger: logger}, nil)
			defer other.Close()

			_, err := registry.Add(m, "meter", tap.Unit{Kind: "pulse"}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Nodes(other)).To(BeEmpty())
			_, ok := registry.Lookup(other, "meter")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Remove", func() {
		It("disconnects and closes the unit", func() {
			_, err := registry.Add(m, "meter", tap.Unit{Kind: "pulse"}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Remove(m, "meter")).To(Succeed())
			Expect(registry.Nodes(m)).To(BeEmpty())
			Expect(units[0].closed).To(BeTrue())
		})
	})

	Describe("a passthrough tap", func() {
		It("is audible on the destination even when the gain is zero", func() {
			_, err := registry.Add(m, "monitor", tap.Unit{Kind: "passthrough", Params: map[string]string{"gain": "0.5"}}, nil)
			Expect(err).NotTo(HaveOccurred())

			m.RampGain(0, 0)
			m.Play(&mixer.Voice{Samples: signal(2), Sends: registry.Nodes(m)})
			out := make([]float32, 2)
			m.Render(out)

			Expect(out).To(Equal([]float32{0.25, 0.25}))
		})
	})
})
