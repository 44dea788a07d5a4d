// ABOUTME: Microphone capture package
// ABOUTME: Encodes live samples into fixed-size PCM16 frames for the transport
// Package capture turns live microphone audio into network-ready frames.
//
// The Encoder runs inside the device callback. It quantizes each window of
// normalized samples into a fixed 2048-sample buffer and hands every full
// buffer off through a non-blocking channel. The Recorder owns an input
// device and an Encoder and delivers each frame as 4096 bytes of PCM16LE:
//
//	rec := capture.NewRecorder(capture.Config{SampleRate: 24000}, input.NewMalgo(nil))
//	rec.Start(ctx, func(frame []byte) { client.SendAudio(frame) })
//	defer rec.Stop()
package capture
