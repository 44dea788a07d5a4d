// ABOUTME: Repartitions inbound sample chunks into fixed-size blocks
// ABOUTME: Keeps the partial remainder between arrivals
package stream

import "github.com/Resonate-Protocol/resonate-live/pkg/audio"

type accumulator struct {
	blockSize int
	remainder []float32
}

func newAccumulator(blockSize int) accumulator {
	return accumulator{
		blockSize: blockSize,
		remainder: make([]float32, 0, blockSize),
	}
}

// add normalizes samples onto the remainder and cuts off every whole block.
// Afterwards the remainder is shorter than one block.
func (a *accumulator) add(samples []int16) []audio.Block {
	var blocks []audio.Block

	for len(samples) > 0 {
		n := min(a.blockSize-len(a.remainder), len(samples))
		for _, s := range samples[:n] {
			a.remainder = append(a.remainder, audio.Int16ToFloat(s))
		}
		samples = samples[n:]

		if len(a.remainder) == a.blockSize {
			blocks = append(blocks, audio.Block(a.remainder))
			a.remainder = make([]float32, 0, a.blockSize)
		}
	}

	return blocks
}

// pad zero-fills the remainder to a whole block and returns it
func (a *accumulator) pad() audio.Block {
	if len(a.remainder) == 0 {
		return nil
	}
	b := make(audio.Block, a.blockSize)
	copy(b, a.remainder)
	a.remainder = a.remainder[:0]
	return b
}

func (a *accumulator) len() int {
	return len(a.remainder)
}

func (a *accumulator) reset() {
	a.remainder = a.remainder[:0]
}
