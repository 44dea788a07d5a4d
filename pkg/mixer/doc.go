// ABOUTME: Render graph used as the playback output context
// ABOUTME: Schedules voices on a sample clock behind a gain stage with send nodes
// Package mixer is the output context the streaming engine renders into.
//
// A Mixer owns a sample-accurate clock (frames rendered divided by the sample
// rate), a list of voices scheduled at absolute clock times, a gain stage with
// linear ramp automation, and send nodes whose processed output is summed into
// the destination after the gain stage. Devices from pkg/audio/output pull
// samples by calling Render from their callback.
//
// Example:
//
//	m := mixer.New(mixer.Config{SampleRate: 24000}, output.NewMalgo(nil))
//	if err := m.Start(); err != nil { ... }
//	m.Play(&mixer.Voice{Samples: block, At: m.Now() + 100*time.Millisecond})
package mixer
