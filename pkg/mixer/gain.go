// ABOUTME: Gain stage automation for the render graph
// ABOUTME: Holds a value plus an optional linear ramp evaluated per frame
package mixer

type gainStage struct {
	value     float32
	from, to  float32
	rampStart int64
	rampEnd   int64
	ramping   bool
}

func newGainStage() gainStage {
	return gainStage{value: 1}
}

// at returns the gain at an absolute frame, settling a finished ramp
func (g *gainStage) at(frame int64) float32 {
	if !g.ramping {
		return g.value
	}
	if frame >= g.rampEnd {
		g.value = g.to
		g.ramping = false
		return g.value
	}
	if frame <= g.rampStart {
		return g.from
	}
	frac := float32(frame-g.rampStart) / float32(g.rampEnd-g.rampStart)
	return g.from + (g.to-g.from)*frac
}

func (g *gainStage) set(v float32) {
	g.value = v
	g.ramping = false
}

// ramp moves linearly from the current value at now to target over frames
func (g *gainStage) ramp(now int64, target float32, frames int64) {
	current := g.at(now)
	if frames <= 0 {
		g.set(target)
		return
	}
	g.from = current
	g.to = target
	g.rampStart = now
	g.rampEnd = now + frames
	g.ramping = true
}
