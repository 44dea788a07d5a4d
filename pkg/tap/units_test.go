// ABOUTME: Tests for the built-in processing units
// ABOUTME: Covers VU meter cadence and decay and the WAV recorder output
package tap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	. "github.com/onsi/gomega"
)

func drain(p *Port) []Message {
	var msgs []Message
	for {
		select {
		case m := <-p.ch:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func constant(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestVUMeterReportsOncePerInterval(t *testing.T) {
	g := NewGomegaWithT(t)

	proc, err := NewVUMeter(1000, map[string]string{"interval_ms": "10"})
	g.Expect(err).NotTo(HaveOccurred())
	port := newPort("meter", 16)

	out := constant(4, 1)
	for i := 0; i < 10; i++ {
		proc.Process(constant(4, 0.5), out, port)
	}

	msgs := drain(port)
	// 40 samples with a 10-sample interval; the first report needs the
	// counter to go negative
	g.Expect(msgs).To(HaveLen(3))
	for _, m := range msgs {
		g.Expect(m.Tap).To(Equal("meter"))
		g.Expect(m.Kind).To(Equal("volume"))
		g.Expect(m.Value).To(BeNumerically("~", 0.5, 1e-6))
	}
	g.Expect(out).To(Equal(make([]float32, 4)))
}

func TestVUMeterDecays(t *testing.T) {
	g := NewGomegaWithT(t)

	proc, err := NewVUMeter(1000, nil)
	g.Expect(err).NotTo(HaveOccurred())
	meter := proc.(*VUMeter)
	port := newPort("meter", 16)

	meter.Process(constant(8, 1), make([]float32, 8), port)
	g.Expect(meter.Level()).To(BeNumerically("~", 1, 1e-6))

	meter.Process(make([]float32, 8), make([]float32, 8), port)
	g.Expect(meter.Level()).To(BeNumerically("~", 0.95, 1e-6))
}

func TestVUMeterRejectsBadInterval(t *testing.T) {
	g := NewGomegaWithT(t)

	_, err := NewVUMeter(1000, map[string]string{"interval_ms": "0.1"})
	g.Expect(err).To(HaveOccurred())

	_, err = NewVUMeter(1000, map[string]string{"interval_ms": "fast"})
	g.Expect(err).To(HaveOccurred())
}

func TestPortCountsDrops(t *testing.T) {
	g := NewGomegaWithT(t)

	port := newPort("p", 1)
	g.Expect(port.Post(Message{Kind: "a"})).To(BeTrue())
	g.Expect(port.Post(Message{Kind: "b"})).To(BeFalse())
	g.Expect(port.Dropped()).To(Equal(int64(1)))
}

func TestRecorderRequiresPath(t *testing.T) {
	g := NewGomegaWithT(t)

	_, err := NewRecorder(1000, map[string]string{})
	g.Expect(err).To(HaveOccurred())
}

func TestRecorderWritesWAV(t *testing.T) {
	g := NewGomegaWithT(t)

	path := filepath.Join(t.TempDir(), "tap.wav")
	proc, err := NewRecorder(8000, map[string]string{"path": path})
	g.Expect(err).NotTo(HaveOccurred())

	port := newPort("rec", 16)
	out := constant(4, 1)
	proc.Process([]float32{0, 0.5, -0.5, -1}, out, port)
	proc.Process([]float32{0.25, 0.25}, out[:2], port)
	g.Expect(out).To(Equal(make([]float32, 4)))

	g.Expect(proc.Close()).To(Succeed())
	g.Expect(proc.(*Recorder).Written()).To(Equal(int64(6)))

	f, err := os.Open(path)
	g.Expect(err).NotTo(HaveOccurred())
	defer f.Close()

	dec := wav.NewDecoder(f)
	g.Expect(dec.IsValidFile()).To(BeTrue())
	buf, err := dec.FullPCMBuffer()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(buf.Format.SampleRate).To(Equal(8000))
	g.Expect(buf.Data).To(Equal([]int{0, 16384, -16384, -32768, 8192, 8192}))
}
