// ABOUTME: Audio type definitions and sample conversion helpers
// ABOUTME: Defines stream formats, blocks, and PCM16 <-> float32 quantization
package audio

import (
	"encoding/binary"
	"time"

	"github.com/chewxy/math32"
)

const (
	// 16-bit sample range constants
	MaxInt16 = 32767
	MinInt16 = -32768

	// Scale between normalized float samples and 16-bit integers
	Int16Scale = 32768
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Block is a fixed-size run of normalized mono samples ready for playback.
// A Block is never mutated after it is handed to the playback queue.
type Block []float32

// Duration returns the playback length of n samples at the given rate.
// Whole seconds are split off first so long-running clocks do not overflow.
func Duration(n, sampleRate int) time.Duration {
	rate := time.Duration(sampleRate)
	secs, rem := time.Duration(n)/rate, time.Duration(n)%rate
	return secs*time.Second + rem*time.Second/rate
}

// Frames converts a duration to a sample count at the given rate, rounding
// to the nearest sample
func Frames(d time.Duration, sampleRate int) int64 {
	rate := int64(sampleRate)
	secs, rem := int64(d/time.Second), int64(d%time.Second)
	return secs*rate + (rem*rate+int64(time.Second)/2)/int64(time.Second)
}

// FloatToInt16 quantizes a normalized sample: scale by 32768, clamp to the
// int16 range, round toward negative infinity. NaN cannot be quantized; it
// yields 0 and a ConversionError.
func FloatToInt16(x float32) (int16, error) {
	if math32.IsNaN(x) {
		return 0, ConversionError.New("sample is NaN")
	}

	v := math32.Floor(x * Int16Scale)
	if v > MaxInt16 {
		return MaxInt16, nil
	}
	if v < MinInt16 {
		return MinInt16, nil
	}
	return int16(v), nil
}

// Int16ToFloat normalizes a 16-bit sample to [-1, 1)
func Int16ToFloat(s int16) float32 {
	return float32(s) / Int16Scale
}

// Int16ToBytes encodes samples as 16-bit little-endian PCM
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 decodes 16-bit little-endian PCM. A trailing odd byte is ignored;
// callers that stream bytes must carry it into the next call.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// Level returns the RMS level of a run of 16-bit samples, normalized to [0, 1]
func Level(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float32
	for _, s := range samples {
		f := Int16ToFloat(s)
		sum += f * f
	}
	return math32.Sqrt(sum / float32(len(samples)))
}
