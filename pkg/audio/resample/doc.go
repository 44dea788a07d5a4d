// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit audio between sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and keeps
// state between calls, so a stream can be fed in arbitrary chunks.
//
// Example:
//
//	r := resample.New(44100, 24000, 1)
//	out = r.Resample(out[:0], chunk)
//
// Whole clips can be converted in one call with Convert.
package resample
