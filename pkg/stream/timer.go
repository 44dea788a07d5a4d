// ABOUTME: Timer abstraction and the pacer that re-runs scheduling passes
// ABOUTME: The pacer keeps at most one of the idle poll and precise timers armed
package stream

import (
	"time"
)

// Timer is a pending one-shot callback
type Timer interface {
	Stop() bool
}

// Clock arms one-shot callbacks
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pacerMode int

const (
	pacerIdle pacerMode = iota
	pacerPolling
	pacerPrecise
)

func (m pacerMode) String() string {
	switch m {
	case pacerPolling:
		return "polling"
	case pacerPrecise:
		return "precise"
	default:
		return "idle"
	}
}

// pacer owns the single timer that re-runs the scheduling pass. Every arm
// bumps the generation, so a callback that lost a race with cancel or re-arm
// is recognized as stale and ignored. Callers serialize access.
type pacer struct {
	clock Clock
	fire  func(gen uint64)

	mode  pacerMode
	timer Timer
	gen   uint64
}

// poll arms the idle poll unless it is already armed
func (p *pacer) poll(d time.Duration) {
	if p.mode == pacerPolling {
		return
	}
	p.arm(pacerPolling, d)
}

// precise arms the precise timer, replacing whatever was armed
func (p *pacer) precise(d time.Duration) {
	p.arm(pacerPrecise, max(0, d))
}

func (p *pacer) arm(mode pacerMode, d time.Duration) {
	p.cancel()
	p.gen++
	gen := p.gen
	p.mode = mode
	p.timer = p.clock.AfterFunc(d, func() { p.fire(gen) })
}

// cancel disarms the pending timer
func (p *pacer) cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	p.mode = pacerIdle
}

// claim reports whether a callback from generation gen is still current and,
// if so, marks the pacer disarmed
func (p *pacer) claim(gen uint64) bool {
	if gen != p.gen || p.mode == pacerIdle {
		return false
	}
	p.timer = nil
	p.mode = pacerIdle
	return true
}
