// ABOUTME: Tap registry for auxiliary signal consumers
// ABOUTME: Named processing units fed by playback sends, with ordered message handlers
// Package tap lets auxiliary consumers observe the live playback signal.
//
// A Registry is owned by the engine and keyed by output context. Each tap is
// one send node per (context, name); registering an existing name appends a
// handler instead of creating a second node. Processing units come from a
// static Catalog of named factories:
//
//   - "vumeter": RMS level with decay, one message per 25ms of audio
//   - "recorder": writes the tapped signal to a 16-bit WAV file ("path" param)
//   - "passthrough": audible monitor copy scaled by the "gain" param
//
// Units run in the render callback and post Messages through a non-blocking
// Port; a dispatcher goroutine per tap calls handlers in registration order.
package tap
