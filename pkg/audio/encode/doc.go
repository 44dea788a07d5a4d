// ABOUTME: Audio encoder package for encoding PCM to wire formats
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode provides audio encoders for the session transport.
//
// Supports: PCM (16-bit little-endian), Opus
//
// All encoders accept int16 samples, the engine's wire sample type.
//
// Example:
//
//	encoder, err := encode.New(audio.Format{Codec: "opus", SampleRate: 24000, Channels: 1})
//	for _, frame := range encode.Frames(encoder, 1, samples) {
//	    packet, err := encoder.Encode(frame)
//	}
package encode
