// ABOUTME: WAV recorder processing unit
// ABOUTME: Copies the tapped signal off the render path and writes 16-bit WAV
package tap

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	recorderBacklog     = 64
	recorderMessageKind = "recorded"
)

// Recorder writes everything routed to its tap into a mono WAV file. It is
// silent on the destination.
type Recorder struct {
	path       string
	sampleRate int
	file       *os.File
	encoder    *wav.Encoder

	frames   chan []float32
	written  atomic.Int64
	dropped  atomic.Int64
	writeErr atomic.Value

	// render side
	seen       int64
	reportNext int64
	reported   bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRecorder opens the file named by the "path" param
func NewRecorder(sampleRate int, params map[string]string) (Processor, error) {
	path := params["path"]
	if path == "" {
		return nil, errors.New("recorder requires a path param")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	r := &Recorder{
		path:       path,
		sampleRate: sampleRate,
		file:       f,
		encoder:    wav.NewEncoder(f, sampleRate, 16, 1, 1),
		frames:     make(chan []float32, recorderBacklog),
		reportNext: int64(sampleRate),
	}

	r.wg.Add(1)
	go r.writeLoop()

	return r, nil
}

func (r *Recorder) Process(in, out []float32, port *Port) {
	clear(out)
	if len(in) == 0 {
		return
	}

	buf := make([]float32, len(in))
	copy(buf, in)
	select {
	case r.frames <- buf:
	default:
		r.dropped.Add(int64(len(in)))
	}

	r.seen += int64(len(in))
	if r.seen >= r.reportNext {
		r.reportNext += int64(r.sampleRate)
		port.Post(Message{Kind: recorderMessageKind, Value: float64(r.written.Load())})
	}
	if err, ok := r.writeErr.Load().(error); ok && !r.reported {
		r.reported = true
		port.Post(Message{Kind: "error", Err: err})
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.sampleRate},
		SourceBitDepth: 16,
	}

	for frame := range r.frames {
		if cap(buf.Data) < len(frame) {
			buf.Data = make([]int, len(frame))
		}
		buf.Data = buf.Data[:len(frame)]
		for i, s := range frame {
			// a NaN sample is written as silence
			v, _ := audio.FloatToInt16(s)
			buf.Data[i] = int(v)
		}
		if err := r.encoder.Write(buf); err != nil {
			r.writeErr.Store(err)
			continue
		}
		r.written.Add(int64(len(frame)))
	}
}

// Written returns the number of samples written to the file
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Dropped returns the number of samples lost because the writer fell behind
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains pending audio and finalizes the WAV header
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.frames)
		r.wg.Wait()
		if encErr := r.encoder.Close(); encErr != nil {
			err = fmt.Errorf("failed to finalize %s: %w", r.path, encErr)
		}
		if fileErr := r.file.Close(); fileErr != nil && err == nil {
			err = fileErr
		}
	})
	return err
}
