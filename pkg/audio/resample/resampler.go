// ABOUTME: Linear interpolation resampler for 16-bit PCM
// ABOUTME: Carries the last input frame across calls so chunked input resamples seamlessly
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64

	// position of the next output frame, in input frames from last
	position float64
	last     []int16 // one sample per channel
	primed   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		last:       make([]int16, channels),
	}
}

// Resample appends input, interleaved at the input rate, to dst at the
// output rate. A frame is emitted once the input frame after it has arrived,
// so the final input frame of a stream is held back.
func (r *Resampler) Resample(dst, input []int16) []int16 {
	ch := r.channels
	frames := len(input) / ch
	if frames == 0 {
		return dst
	}

	total := frames
	if r.primed {
		total++
	}
	sample := func(i, c int) int16 {
		if r.primed {
			if i == 0 {
				return r.last[c]
			}
			i--
		}
		return input[i*ch+c]
	}

	for r.position+1 < float64(total) {
		i := int(r.position)
		frac := r.position - float64(i)
		for c := 0; c < ch; c++ {
			v := float64(sample(i, c))*(1-frac) + float64(sample(i+1, c))*frac
			dst = append(dst, int16(math.Round(v)))
		}
		r.position += r.step
	}

	r.position -= float64(total - 1)
	copy(r.last, input[(frames-1)*ch:frames*ch])
	r.primed = true

	return dst
}

// Reset clears the carried frame and position
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.last {
		r.last[i] = 0
	}
}

// OutputSamplesNeeded estimates how many output samples inputSamples yield
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	return int(float64(inputFrames)/r.step) * r.channels
}

// Convert resamples a whole mono clip
func Convert(samples []int16, from, to int) []int16 {
	if from == to {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	r := New(from, to, 1)
	return r.Resample(make([]int16, 0, r.OutputSamplesNeeded(len(samples))+1), samples)
}
