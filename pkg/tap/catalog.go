// ABOUTME: Static catalog of processing unit factories
// ABOUTME: Units are selected by kind name at registration time
package tap

import (
	"sort"
	"strconv"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// Processor is a processing unit variant. Process runs in the render callback
// with equal-length in and out slices; whatever it writes to out is mixed into
// the destination.
type Processor interface {
	Process(in, out []float32, port *Port)
	Close() error
}

// Unit describes the processing unit a tap should load
type Unit struct {
	Kind   string
	Params map[string]string
}

// Factory builds a processing unit for a context's sample rate
type Factory func(sampleRate int, params map[string]string) (Processor, error)

// Catalog maps unit kinds to factories
type Catalog map[string]Factory

// DefaultCatalog returns the built-in processing units
func DefaultCatalog() Catalog {
	return Catalog{
		"vumeter":     NewVUMeter,
		"recorder":    NewRecorder,
		"passthrough": NewPassthrough,
	}
}

// Kinds lists the catalog's unit kinds in sorted order
func (c Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c))
	for k := range c {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (c Catalog) build(unit Unit, sampleRate int) (Processor, error) {
	factory, ok := c[unit.Kind]
	if !ok {
		return nil, audio.SetupError.New("unknown processing unit %q (available: %v)", unit.Kind, c.Kinds())
	}
	proc, err := factory(sampleRate, unit.Params)
	if err != nil {
		return nil, audio.SetupError.Wrap(err, "failed to load processing unit %q", unit.Kind)
	}
	return proc, nil
}

// floatParam parses an optional numeric parameter
func floatParam(params map[string]string, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// Passthrough copies its input to the destination, scaled by "gain"
type Passthrough struct {
	gain float32
}

// NewPassthrough builds a passthrough monitor unit
func NewPassthrough(sampleRate int, params map[string]string) (Processor, error) {
	gain, err := floatParam(params, "gain", 1)
	if err != nil {
		return nil, err
	}
	return &Passthrough{gain: float32(gain)}, nil
}

func (p *Passthrough) Process(in, out []float32, port *Port) {
	for i, s := range in {
		out[i] = s * p.gain
	}
}

func (p *Passthrough) Close() error { return nil }
