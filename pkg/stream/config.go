// ABOUTME: Streamer configuration and defaults
// ABOUTME: Timing knobs for look-ahead scheduling, fades, and backpressure
package stream

import (
	"log"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// Overflow selects what happens when the queue is full
type Overflow int

const (
	// DropNewest discards the block that did not fit
	DropNewest Overflow = iota
	// DropOldest discards the block at the head of the queue to make room
	DropOldest
)

func (o Overflow) String() string {
	switch o {
	case DropOldest:
		return "drop-oldest"
	default:
		return "drop-newest"
	}
}

// Config holds streamer configuration. Zero values take the defaults.
type Config struct {
	SampleRate int
	BlockSize  int

	// LookAhead is how far ahead of the output clock blocks are committed
	LookAhead time.Duration
	// InitialBufferDelay is the gap between the first block of a turn
	// arriving and it starting to play
	InitialBufferDelay time.Duration

	// MaxQueuedBlocks bounds the queue; 0 means unbounded
	MaxQueuedBlocks int
	Overflow        Overflow

	IdlePollInterval time.Duration
	// RearmLead is how long before the committed audio runs out the
	// precise timer fires
	RearmLead      time.Duration
	FadeOut        time.Duration
	GainResetDelay time.Duration

	Clock  Clock
	Logger *log.Logger
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:         24000,
		BlockSize:          7680,
		LookAhead:          200 * time.Millisecond,
		InitialBufferDelay: 100 * time.Millisecond,
		IdlePollInterval:   100 * time.Millisecond,
		RearmLead:          50 * time.Millisecond,
		FadeOut:            100 * time.Millisecond,
		GainResetDelay:     200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = def.BlockSize
	}
	if c.LookAhead <= 0 {
		c.LookAhead = def.LookAhead
	}
	if c.InitialBufferDelay <= 0 {
		c.InitialBufferDelay = def.InitialBufferDelay
	}
	if c.IdlePollInterval <= 0 {
		c.IdlePollInterval = def.IdlePollInterval
	}
	if c.RearmLead <= 0 {
		c.RearmLead = def.RearmLead
	}
	if c.FadeOut <= 0 {
		c.FadeOut = def.FadeOut
	}
	if c.GainResetDelay <= 0 {
		c.GainResetDelay = def.GainResetDelay
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// advance returns the start of the block after one starting at at. The
// result sits on a whole sample so the timeline does not drift.
func (c Config) advance(at time.Duration) time.Duration {
	return audio.Duration(int(audio.Frames(at, c.SampleRate))+c.BlockSize, c.SampleRate)
}

// BlockDuration returns the playback length of one block
func (c Config) BlockDuration() time.Duration {
	return audio.Duration(c.BlockSize, c.SampleRate)
}
