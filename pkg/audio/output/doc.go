// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the pull-model Output interface with malgo, oto and PortAudio backends
// Package output provides audio playback backends.
//
// Devices pull mono float32 samples from a Renderer inside their callback and
// fan them out to the device channel count. Supported backends are malgo
// (miniaudio), oto, and PortAudio (build with -tags portaudio).
//
// Example:
//
//	out := output.NewMalgo(logger)
//	err := out.Open(24000, 2, mixer)
//	defer out.Close()
package output
