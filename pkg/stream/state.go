// ABOUTME: Playback lifecycle states
// ABOUTME: Idle, Playing, Draining, and Stopping
package stream

// State is the playback lifecycle state
type State int

const (
	// Idle has nothing scheduled and is waiting for data
	Idle State = iota
	// Playing is receiving and scheduling blocks
	Playing
	// Draining has been told no more data follows and is playing out
	Draining
	// Stopping is fading out; inbound data is discarded
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Draining:
		return "draining"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
