// beat_clock.go - phase-locked loop advancing continuous beat phase (spec 4.7)

package beatcore

import "math"

// BeatClock integrates tempo into a continuous beat phase between resolver
// updates, corrects it from the resolver's phase hint, and emits a
// single-frame beat tick on positive zero-crossings.
type BeatClock struct {
	cfg   *Config
	state BeatClockState

	lastTickAtMs float32 // float ms for sub-millisecond debounce precision
	nowMs        float32
	beatCount    uint32
}

// NewBeatClock builds a clock using cfg.Clock, free-running at 0 BPM until
// the first resolver update.
func NewBeatClock(cfg *Config) *BeatClock {
	return &BeatClock{cfg: cfg}
}

// Advance moves the phase forward by dtSeconds at bpm_eff (spec 4.7,
// "Integration"). Call this at the renderer rate, independent of the hop
// rate; it does not touch bpm_eff itself.
func (c *BeatClock) Advance(dtSeconds float32) (tick, downbeat bool) {
	c.nowMs += dtSeconds * 1000
	if c.state.BPMEff <= 0 {
		return false, false
	}

	prevPhase := c.state.PhaseRad
	c.state.PhaseRad += 2 * math.Pi * float32(c.state.BPMEff/60) * dtSeconds
	c.state.PhaseRad = wrapPi(c.state.PhaseRad)

	// A positive zero-crossing wraps the phase from near +pi back to near
	// -pi in a single step; a large downward jump is the tell.
	crossed := prevPhase >= 0 && c.state.PhaseRad < 0 && (prevPhase-c.state.PhaseRad) > math.Pi/2

	if !crossed {
		return false, false
	}

	periodMs := 60000 / c.state.BPMEff
	debounceMs := c.cfg.Clock.TickDebounceFraction * periodMs
	if c.nowMs-c.lastTickAtMs < debounceMs {
		return false, false
	}

	c.lastTickAtMs = c.nowMs
	c.state.LastTickMs = uint32(c.nowMs)
	c.beatCount++
	downbeat = c.cfg.Clock.BarLengthBeats > 0 && int(c.beatCount)%c.cfg.Clock.BarLengthBeats == 0
	return true, downbeat
}

// BeatPhase01 reports the current phase normalized to [0, 1).
func (c *BeatClock) BeatPhase01() float32 {
	return (c.state.PhaseRad + math.Pi) / (2 * math.Pi)
}

// Correct applies a resolver update (spec 4.7, "Correction"). When the
// resolver is unlocked the clock free-runs at the last bpm_eff.
func (c *BeatClock) Correct(phaseHint, bpmResolver float32, locked bool) {
	c.state.Locked = locked
	if !locked {
		return
	}
	if c.state.BPMEff == 0 {
		// First lock: snap directly, nothing to correct from yet.
		c.state.PhaseRad = wrapPi(phaseHint)
		c.state.BPMEff = bpmResolver
		return
	}

	if absf32(bpmResolver-c.state.BPMEff) > c.cfg.Clock.BigChangeThresholdBPM {
		c.state.PhaseRad = wrapPi(phaseHint)
		c.state.BPMEff = bpmResolver
		c.state.FreqErrorEMA = 0
		return
	}

	e := wrapPi(phaseHint - c.state.PhaseRad)
	c.state.PhaseError = e

	correction := c.cfg.Clock.Kp * e
	clamp := c.cfg.Clock.PhaseCorrectionClamp
	if correction > clamp {
		correction = clamp
	} else if correction < -clamp {
		correction = -clamp
	}
	c.state.PhaseRad = wrapPi(c.state.PhaseRad + correction)

	alpha := c.cfg.Clock.FreqEMAAlpha
	c.state.FreqErrorEMA = (1-alpha)*c.state.FreqErrorEMA + alpha*e

	freqCorrection := c.cfg.Clock.Kf * c.state.FreqErrorEMA * 60
	fclamp := c.cfg.Clock.FreqCorrectionClampBPM
	if freqCorrection > fclamp {
		freqCorrection = fclamp
	} else if freqCorrection < -fclamp {
		freqCorrection = -fclamp
	}
	c.state.BPMEff += freqCorrection
}

// State returns a copy of the clock's published state.
func (c *BeatClock) State() BeatClockState {
	return c.state
}

// Reset implements reset_dsp_state()'s effect on the clock: clear phase and
// lock state but this is a fresh init, so bpm_eff also resets to 0 (the
// Core preserves nothing across an explicit reset for the clock, unlike the
// ring window, the Goertzel coefficients and the calibrated DC bias, which
// spec section 5 names as preserved).
func (c *BeatClock) Reset() {
	c.state = BeatClockState{}
	c.lastTickAtMs = 0
	c.nowMs = 0
	c.beatCount = 0
}
