// ABOUTME: VU meter processing unit
// ABOUTME: Tracks RMS level with exponential decay and reports it at a fixed interval
package tap

import (
	"fmt"

	"github.com/chewxy/math32"
)

const (
	vuDecay           = 0.95
	vuDefaultInterval = 25.0 // milliseconds
	vuMessageKind     = "volume"
)

// VUMeter reports the signal level. It is silent: nothing reaches the
// destination through it.
type VUMeter struct {
	volume   float32
	interval int
	next     int
}

// NewVUMeter builds a meter reporting every "interval_ms" (default 25ms)
func NewVUMeter(sampleRate int, params map[string]string) (Processor, error) {
	ms, err := floatParam(params, "interval_ms", vuDefaultInterval)
	if err != nil {
		return nil, err
	}
	interval := int(ms / 1000 * float64(sampleRate))
	if interval <= 0 {
		return nil, fmt.Errorf("interval_ms %v is shorter than one sample", ms)
	}
	return &VUMeter{interval: interval, next: interval}, nil
}

func (v *VUMeter) Process(in, out []float32, port *Port) {
	clear(out)
	if len(in) == 0 {
		return
	}

	var sum float32
	for _, s := range in {
		sum += s * s
	}
	rms := math32.Sqrt(sum / float32(len(in)))
	v.volume = math32.Max(rms, v.volume*vuDecay)

	v.next -= len(in)
	if v.next < 0 {
		v.next += v.interval
		port.Post(Message{Kind: vuMessageKind, Value: float64(v.volume)})
	}
}

// Level returns the current decayed level
func (v *VUMeter) Level() float32 {
	return v.volume
}

func (v *VUMeter) Close() error { return nil }
