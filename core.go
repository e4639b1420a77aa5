// core.go - wires the pipeline stages into the per-hop orchestration (spec 4.8)

package beatcore

import "time"

// Core owns every DSP component for one beat-tracker instance and runs the
// single-threaded per-hop pipeline described in spec section 2's data-flow
// diagram. The stages reuse buffers allocated at construction, but each
// ProcessHop allocates a fresh ControlBusFrame and a copy of the spectrum
// for it. A Core is not safe for concurrent calls to
// ProcessHop; only ControlBusPublisher.Load is meant to be called from
// another goroutine.
type Core struct {
	cfg        *Config
	sampleRate int
	hopSize    int
	hopRateHz  float32

	conditioner *CaptureConditioner
	window      *RingWindow
	goertzel    *GoertzelBank
	novelty     *NoveltyDetector
	resonators  *TempoResonatorBank
	resolver    *TactusResolver
	clock       *BeatClock
	bus         *ControlBusPublisher

	hopSeq   uint32
	nowMs    int64
	counters Counters

	calibratedDCBias float32

	deadlineLog *eventLogger
	lockLog     *eventLogger
	lastLockState LockState
}

// NewCore builds a full pipeline for audio sampled at sampleRate Hz,
// delivered in hops of hopSize samples (the window, spectrum, and tempo
// bank sizes all come from cfg).
func NewCore(cfg *Config, sampleRate, hopSize int) *Core {
	c := &Core{
		cfg:           cfg,
		sampleRate:    sampleRate,
		hopSize:       hopSize,
		hopRateHz:     float32(sampleRate) / float32(hopSize),
		bus:           NewControlBusPublisher(),
		deadlineLog:   newEventLogger(100),
		lockLog:       newEventLogger(1),
		lastLockState: LockUnlocked,
	}
	c.rebuild(cfg)
	if cfg.Calibration.Calibrated {
		c.conditioner.SetDCBias(cfg.Calibration.DCBias)
		c.calibratedDCBias = cfg.Calibration.DCBias
	}
	return c
}

// rebuild constructs every sizing-dependent component fresh from cfg. It is
// called from NewCore and from Reconfigure; Reconfigure documents that a
// structural retune restarts tempo lock and beat phase rather than trying to
// carry them across a changed bin count or window size.
func (c *Core) rebuild(cfg *Config) {
	c.cfg = cfg
	c.conditioner = NewCaptureConditioner(c.hopSize, cfg)
	c.window = NewRingWindow(cfg.Window.Size)
	c.goertzel = NewGoertzelBank(cfg, c.sampleRate, cfg.Window.Size)
	c.novelty = NewNoveltyDetector(cfg.Spectrum.Bins, c.hopRateHz, cfg)
	c.resonators = NewTempoResonatorBank(cfg, c.hopRateHz)
	c.resolver = NewTactusResolver(cfg)
	c.clock = NewBeatClock(cfg)
}

// ProcessHop runs one hop of raw samples through the full pipeline and
// publishes the resulting ControlBusFrame. It returns a *ShortHopError
// (hop discarded, pipeline state unchanged) or a wrapped ErrInvariantViolation
// if the control bus detects a broken hop_seq; any other value is nil.
func (c *Core) ProcessHop(raw []int32) error {
	start := time.Now()

	conditioned, quality, err := c.conditioner.Ingest(raw)
	if err != nil {
		c.counters.ShortHops++
		return err
	}

	c.window.Append(conditioned)
	spectral := c.goertzel.Process(c.window)
	noveltyResult := c.novelty.Process(spectral.Magnitudes)
	candidates := c.resonators.Process(c.novelty.Curve())
	resolved := c.resolver.Process(candidates, c.resonators, c.nowMs)

	dt := float32(c.hopSize) / float32(c.sampleRate)
	tick, downbeat := c.clock.Advance(dt)
	c.clock.Correct(resolved.PhaseHint, resolved.LockedBPM, resolved.Locked)

	if resolved.LockState != c.lastLockState {
		defaultLogger.Infof("tactus lock state %s -> %s (bpm=%.1f conf=%.2f)",
			c.lastLockState, resolved.LockState, resolved.LockedBPM, resolved.Confidence)
		c.lastLockState = resolved.LockState
	}

	if quality.Clipping {
		c.counters.ClipWarnings++
	}
	if quality.MicSilent {
		c.counters.MicSilentHops++
	}
	quality.Counters = c.counters
	frame := &ControlBusFrame{
		HopSeq:        c.hopSeq,
		TMs:           uint32(c.nowMs),
		Spectrum:      append([]float32(nil), spectral.Magnitudes...),
		Novelty:       noveltyResult.Raw,
		BPM:           c.clock.State().BPMEff,
		BeatPhase01:   c.clock.BeatPhase01(),
		BeatTick:      tick,
		DownbeatTick:  downbeat,
		Confidence:    resolved.Confidence,
		Locked:        resolved.Locked,
		SignalQuality: quality,
	}

	if err := c.bus.Publish(frame); err != nil {
		return err
	}

	c.hopSeq++
	c.nowMs += int64(dt * 1000)

	elapsedMs := float32(time.Since(start).Microseconds()) / 1000
	if elapsedMs > c.cfg.Core.HopDeadlineMs {
		c.counters.DeadlineMisses++
		if c.deadlineLog.shouldLog() {
			defaultLogger.Warnf("hop %.2fms exceeded budget %.2fms (%d total misses)",
				elapsedMs, c.cfg.Core.HopDeadlineMs, c.counters.DeadlineMisses)
		}
	}

	return nil
}

// Bus returns the publisher the visual consumer reads from.
func (c *Core) Bus() *ControlBusPublisher {
	return c.bus
}

// Counters reports the session-accumulated recoverable error taxonomy
// (SPEC_FULL supplement to spec section 7).
func (c *Core) Counters() Counters {
	return c.counters
}

// TactusState exposes the resolver's published state for diagnostics.
func (c *Core) TactusState() TactusState {
	return c.resolver.State()
}

// BeatClockState exposes the clock's published state for diagnostics.
func (c *Core) BeatClockState() BeatClockState {
	return c.clock.State()
}

// GoertzelChecksumOK reports whether the spectral filter bank's coefficients
// still match their value at construction (spec invariant 5).
func (c *Core) GoertzelChecksumOK() bool {
	return c.goertzel.VerifyChecksum()
}

// ResetDSPState implements spec section 5's reset_dsp_state(): it clears
// accumulated analysis state (novelty history, tempo lock, beat phase, the
// conditioner's per-hop signal-quality record) while preserving the ring
// window's audio history and the calibrated DC bias, since the input signal
// is still continuous. The session counters reported by Counters are kept.
func (c *Core) ResetDSPState() {
	c.conditioner.Reset()
	c.conditioner.SetDCBias(c.calibratedDCBias)
	c.novelty.Reset()
	c.resonators.Reset()
	c.resolver.Reset()
	c.clock.Reset()
	c.lastLockState = LockUnlocked
}

// CalibrateDC measures silenceHops (raw hops the caller asserts contain no
// signal) and applies the resulting bias to the capture conditioner,
// recording it in cfg.Calibration. It does not write any file; once the
// caller saves cfg with Config.Save, a later LoadConfig and NewCore restore
// the bias without a fresh calibration pass.
func (c *Core) CalibrateDC(silenceHops [][]int32) float32 {
	bias := CalibrateDC(silenceHops)
	c.conditioner.SetDCBias(bias)
	c.calibratedDCBias = bias
	c.cfg.Calibration.DCBias = bias
	c.cfg.Calibration.Calibrated = true
	return bias
}

// Reconfigure rebuilds the pipeline from a new Config. Because bin counts,
// window sizes, and tempo-bank sizing are baked into each component at
// construction (the no-allocation-after-init rule applies only to the
// steady-state per-hop path, not to this administrative operation),
// Reconfigure is a cold restart of the analysis stages: tempo lock and beat
// phase are not preserved across it. The calibrated DC bias is.
func (c *Core) Reconfigure(cfg *Config) {
	dcBias := c.calibratedDCBias
	calibrated := cfg.Calibration.Calibrated || c.cfg.Calibration.Calibrated
	c.rebuild(cfg)
	if calibrated {
		c.conditioner.SetDCBias(dcBias)
		c.calibratedDCBias = dcBias
		c.cfg.Calibration.DCBias = dcBias
		c.cfg.Calibration.Calibrated = true
	}
	c.lastLockState = LockUnlocked
}

// HopSeq reports the next hop_seq ProcessHop will publish.
func (c *Core) HopSeq() uint32 {
	return c.hopSeq
}
