// ABOUTME: Audio input interface definition
// ABOUTME: Common interface for microphone capture backends
package input

// WindowFunc receives one device callback's worth of mono samples. It runs in
// the device callback and must not block; the slice is reused after return.
type WindowFunc func(window []float32)

// Input represents an audio capture device
type Input interface {
	// Open starts capturing mono audio in windows of the given frame count
	Open(sampleRate, channels, window int, fn WindowFunc) error

	// Close stops capture and releases resources
	Close() error
}

// downmix averages interleaved frames into mono
func downmix(dst, interleaved []float32, channels int) {
	if channels == 1 {
		copy(dst, interleaved)
		return
	}
	scale := 1 / float32(channels)
	for i := range dst {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		dst[i] = sum * scale
	}
}
