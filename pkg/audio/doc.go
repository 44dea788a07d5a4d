// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Block, quantization helpers, and the error taxonomy
// Package audio provides fundamental audio types and utilities for live streaming.
//
// This package defines core types used throughout the engine:
//   - Format: Describes a stream format (codec, sample rate, channels, bit depth)
//   - Block: A fixed-size run of normalized samples ready for playback
//
// It also provides conversions between wire and playback sample formats:
//   - float32 ↔ int16 quantization (FloatToInt16, Int16ToFloat)
//   - int16 ↔ little-endian PCM bytes
//
// Errors raised by the engine belong to the errorx namespace defined here and
// can be classified with errorx.IsOfType:
//
//	if errorx.IsOfType(err, audio.DeviceError) {
//	    // output device unavailable
//	}
package audio
