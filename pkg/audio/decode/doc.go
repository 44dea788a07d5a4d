// ABOUTME: Audio decoder package for wire codec support
// ABOUTME: Provides Decoder interface and implementations for PCM and Opus
// Package decode provides audio decoders for the session transport.
//
// Supports: PCM (16-bit little-endian), Opus
//
// All decoders implement the Decoder interface and output int16 samples,
// ready to hand to the playback engine.
//
// Example:
//
//	decoder, err := decode.New(format)
//	samples, err := decoder.Decode(packet)
package decode
