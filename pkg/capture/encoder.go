// ABOUTME: Fixed-size frame encoder for the capture path
// ABOUTME: Quantizes windows of float samples and flushes whenever the buffer fills
package capture

import (
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// Chunk is one completed frame
type Chunk struct {
	Samples []int16
	// ConversionErrors counts samples written as silence because they could
	// not be quantized
	ConversionErrors int
}

// Encoder fills a fixed frame buffer from capture windows. Process must only
// be called from one goroutine; Chunks may be read from any other.
type Encoder struct {
	buf    []int16
	n      int
	errors int

	chunks  chan Chunk
	dropped atomic.Int64
}

// NewEncoder creates an encoder emitting frameSize-sample chunks. backlog
// bounds the chunks waiting to be read.
func NewEncoder(frameSize, backlog int) *Encoder {
	if frameSize <= 0 {
		panic(audio.InvariantError.New("frame size must be positive, got %d", frameSize))
	}
	return &Encoder{
		buf:    make([]int16, frameSize),
		chunks: make(chan Chunk, backlog),
	}
}

// Process quantizes one window. It may emit zero, one, or several chunks; a
// frame that fills mid-window is flushed at that point and the rest of the
// window starts a fresh frame.
func (e *Encoder) Process(window []float32) {
	for _, x := range window {
		s, err := audio.FloatToInt16(x)
		if err != nil {
			e.errors++
		}
		e.buf[e.n] = s
		e.n++

		if e.n == len(e.buf) {
			e.flush()
		}
	}
}

func (e *Encoder) flush() {
	frame := make([]int16, len(e.buf))
	copy(frame, e.buf)

	select {
	case e.chunks <- Chunk{Samples: frame, ConversionErrors: e.errors}:
	default:
		e.dropped.Add(1)
	}
	e.n = 0
	e.errors = 0
}

// Chunks delivers completed frames
func (e *Encoder) Chunks() <-chan Chunk {
	return e.chunks
}

// Pending returns the number of samples in the partially filled frame
func (e *Encoder) Pending() int {
	return e.n
}

// FrameSize returns the frame length in samples
func (e *Encoder) FrameSize() int {
	return len(e.buf)
}

// Dropped returns the number of frames lost because no one was reading
func (e *Encoder) Dropped() int64 {
	return e.dropped.Load()
}

// Reset discards the partial frame
func (e *Encoder) Reset() {
	e.n = 0
	e.errors = 0
}
