// ABOUTME: Test tone generator
// ABOUTME: Produces a fixed-length sine wave at half scale
package source

import (
	"io"
	"math"
	"sync"
	"time"
)

// Tone generates a sine wave of fixed duration
type Tone struct {
	mu         sync.Mutex
	frequency  float64
	sampleRate int
	index      int
	total      int
}

// NewTone creates a tone of frequency Hz lasting d
func NewTone(sampleRate int, frequency float64, d time.Duration) *Tone {
	return &Tone{
		frequency:  frequency,
		sampleRate: sampleRate,
		total:      int(d * time.Duration(sampleRate) / time.Second),
	}
}

func (t *Tone) Read(samples []int16) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := min(len(samples), t.total-t.index)
	if n <= 0 {
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		x := float64(t.index+i) / float64(t.sampleRate)
		// 50% volume
		samples[i] = int16(math.Sin(2*math.Pi*t.frequency*x) * 32767.0 * 0.5)
	}
	t.index += n

	return n, nil
}

func (t *Tone) SampleRate() int { return t.sampleRate }
func (t *Tone) Title() string   { return "Test Tone" }
func (t *Tone) Close() error    { return nil }
