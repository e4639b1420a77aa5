// novelty_detector.go - spectral-flux novelty curve (spec 4.4)

package beatcore

import "math"

// NoveltyCurve is a circular buffer of the last H_nov novelty samples.
type NoveltyCurve struct {
	buf  []float32
	head int
	size int
	full bool
}

// NewNoveltyCurve allocates a circular buffer of the given capacity.
func NewNoveltyCurve(size int) *NoveltyCurve {
	return &NoveltyCurve{buf: make([]float32, size), size: size}
}

// Push appends v, overwriting the oldest sample once full.
func (n *NoveltyCurve) Push(v float32) {
	n.buf[n.head] = v
	n.head = (n.head + 1) % n.size
	if n.head == 0 {
		n.full = true
	}
}

// Len returns how many valid samples the curve currently holds.
func (n *NoveltyCurve) Len() int {
	if n.full {
		return n.size
	}
	return n.head
}

// At returns the sample i hops ago (0 = most recent). Callers must have
// i < Len().
func (n *NoveltyCurve) At(i int) float32 {
	idx := (n.head - 1 - i + n.size) % n.size
	return n.buf[idx]
}

// DecayAll multiplies every retained sample by factor, used for the
// silence-adaptive gate's accelerated recovery.
func (n *NoveltyCurve) DecayAll(factor float32) {
	for i := range n.buf {
		n.buf[i] *= factor
	}
}

// NoveltyDetector produces a non-negative novelty scalar per hop from
// successive magnitude frames (spec 4.4).
type NoveltyDetector struct {
	prevMag []float32
	curve   *NoveltyCurve

	// Silence detector: sliding window of raw (pre-log) novelty for a
	// range-based silence gate.
	silenceWindow []float32
	silenceHead   int
	silenceDecay  float32
	silenceEps    float32

	// Running mean/variance for the z-scored form (diagnostics only).
	mean, variance float32
	meanAlpha      float32
	varAlpha       float32
	zClamp         float32
}

// NewNoveltyDetector builds a detector for a K-bin spectrum using cfg.Novelty.
func NewNoveltyDetector(k int, hopRateHz float32, cfg *Config) *NoveltyDetector {
	silenceWindowLen := int(cfg.Novelty.SilenceWindowSeconds * hopRateHz)
	if silenceWindowLen < 1 {
		silenceWindowLen = 1
	}
	return &NoveltyDetector{
		prevMag:       make([]float32, k),
		curve:         NewNoveltyCurve(cfg.Novelty.HistoryLen),
		silenceWindow: make([]float32, silenceWindowLen),
		silenceDecay:  cfg.Novelty.SilenceDecay,
		silenceEps:    cfg.Novelty.SilenceEpsilon,
		meanAlpha:     1.0 / (cfg.Novelty.MeanTauSeconds * hopRateHz),
		varAlpha:      1.0 / (cfg.Novelty.VarTauSeconds * hopRateHz),
		zClamp:        cfg.Novelty.ZClamp,
	}
}

// NoveltyResult bundles the raw-logged novelty (what the tempo resonator bank
// consumes) with the z-scored form (diagnostics only, spec 4.4).
type NoveltyResult struct {
	Raw     float32 // log-compressed, what feeds the resonator bank
	Z       float32
	Silence bool
}

// Process computes the novelty for the current magnitude frame and appends it
// to the circular history.
func (d *NoveltyDetector) Process(mag []float32) NoveltyResult {
	var flux float32
	for i, m := range mag {
		diff := m - d.prevMag[i]
		if diff > 0 {
			flux += diff
		}
		d.prevMag[i] = m
	}
	if len(mag) > 0 {
		flux /= float32(len(mag))
	}

	novRaw := float32(math.Log1p(float64(flux)))

	// Silence gate: range over the sliding window of raw (pre-log) flux.
	d.silenceWindow[d.silenceHead] = flux
	d.silenceHead = (d.silenceHead + 1) % len(d.silenceWindow)
	lo, hi := d.silenceWindow[0], d.silenceWindow[0]
	for _, v := range d.silenceWindow {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	silence := (hi - lo) < d.silenceEps
	if silence {
		novRaw *= d.silenceDecay
		d.curve.DecayAll(d.silenceDecay)
	}

	d.curve.Push(novRaw)

	// EWMA mean/variance for the z-scored diagnostic signal.
	delta := novRaw - d.mean
	d.mean += d.meanAlpha * delta
	d.variance = (1-d.varAlpha)*d.variance + d.varAlpha*delta*delta
	sigma := float32(math.Sqrt(float64(d.variance)))
	if sigma < 1e-6 {
		sigma = 1e-6
	}
	z := (novRaw - d.mean) / sigma
	if z > d.zClamp {
		z = d.zClamp
	} else if z < -d.zClamp {
		z = -d.zClamp
	}

	return NoveltyResult{Raw: novRaw, Z: z, Silence: silence}
}

// Curve exposes the underlying history for the tempo resonator bank.
func (d *NoveltyDetector) Curve() *NoveltyCurve {
	return d.curve
}

// Reset clears all state except the circular buffer's capacity.
func (d *NoveltyDetector) Reset() {
	for i := range d.prevMag {
		d.prevMag[i] = 0
	}
	for i := range d.silenceWindow {
		d.silenceWindow[i] = 0
	}
	d.curve.DecayAll(0)
	d.mean, d.variance = 0, 0
}
