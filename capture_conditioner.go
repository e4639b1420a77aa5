// capture_conditioner.go - DC correction and signal-quality monitoring (spec 4.1)

package beatcore

import "math"

// CaptureConditioner converts raw hardware samples into conditioned floating
// samples and maintains the per-hop SignalQuality record. All buffers are
// preallocated at construction time; Ingest performs no allocation.
type CaptureConditioner struct {
	hopSize int

	shiftBits     uint
	dcBias        int32
	residualDC    int32
	gain          float32
	clipThreshold int32
	clipWarnCount uint32
	silentHops    int

	conditioned []float32 // preallocated output buffer, length hopSize

	consecutiveZeroHops int
	quality             SignalQuality

	// Rolling peak/noise-floor trackers for snr_est, EWMA with a ~1s time
	// constant at the hop rate.
	peakEMA  float32
	noiseEMA float32
}

// NewCaptureConditioner builds a conditioner for hops of hopSize samples
// using the tunables in cfg.Capture.
func NewCaptureConditioner(hopSize int, cfg *Config) *CaptureConditioner {
	return &CaptureConditioner{
		hopSize:       hopSize,
		shiftBits:     cfg.Capture.ShiftBits,
		dcBias:        cfg.Capture.DCBias,
		residualDC:    cfg.Capture.ResidualDC,
		gain:          cfg.Capture.Gain,
		clipThreshold: cfg.Capture.ClipThreshold,
		clipWarnCount: cfg.Capture.ClipWarnCount,
		silentHops:    cfg.Capture.SilentHops,
		conditioned:   make([]float32, hopSize),
		noiseEMA:      1e-6,
	}
}

// Ingest applies the conditioning chain from spec 4.1 to raw and returns the
// conditioned samples (owned by the conditioner; copy before the next call if
// retention is needed) plus the refreshed SignalQuality. If raw has fewer
// samples than hopSize it returns a ShortHopError and the previous quality
// record, with the hop discarded.
func (c *CaptureConditioner) Ingest(raw []int32) ([]float32, SignalQuality, error) {
	if len(raw) < c.hopSize {
		c.quality.Counters.ShortHops++
		return nil, c.quality, &ShortHopError{Got: len(raw), Want: c.hopSize}
	}
	raw = raw[:c.hopSize]

	var sumSq float64
	var sumRaw int64
	var peak float32
	var clipCount, zeroCount uint32
	allZero := true

	for i, s := range raw {
		if s != 0 {
			allZero = false
		} else {
			zeroCount++
		}
		if abs32(s) >= c.clipThreshold {
			clipCount++
		}
		sumRaw += int64(s)

		shifted := s >> c.shiftBits
		v := shifted - c.dcBias
		v = clampI32(v, -c.clipThreshold, c.clipThreshold)
		v = v - c.residualDC

		f := float32(v) / float32(c.clipThreshold) * c.gain
		c.conditioned[i] = f

		sumSq += float64(f) * float64(f)
		if af := float32(math.Abs(float64(f))); af > peak {
			peak = af
		}
	}

	n := float32(c.hopSize)
	c.quality.RMS = float32(math.Sqrt(sumSq / float64(c.hopSize)))
	c.quality.Peak = peak
	c.quality.ClipCount = clipCount
	c.quality.ZeroCount = zeroCount
	c.quality.DCOffset = float32(float64(sumRaw) / float64(c.hopSize))

	// EWMA peak/noise-floor tracking for an SNR estimate, tau ~= 1s matches
	// the auto-ranger's smoothing constant used elsewhere in the pipeline.
	const tauHops = 100.0 // ~1s at 100Hz hop rate
	alpha := float32(1.0 / tauHops)
	c.peakEMA = (1-alpha)*c.peakEMA + alpha*peak
	if c.quality.RMS < c.noiseEMA || c.noiseEMA == 0 {
		c.noiseEMA = (1-alpha)*c.noiseEMA + alpha*c.quality.RMS
	}
	if c.noiseEMA <= 0 {
		c.noiseEMA = 1e-6
	}
	c.quality.SNREstimate = c.peakEMA / c.noiseEMA

	c.quality.Clipping = clipCount >= c.clipWarnCount
	if c.quality.Clipping {
		c.quality.Counters.ClipWarnings++
	}

	if allZero {
		c.consecutiveZeroHops++
	} else {
		c.consecutiveZeroHops = 0
	}
	c.quality.MicSilent = c.consecutiveZeroHops >= c.silentHops
	if c.quality.MicSilent {
		c.quality.Counters.MicSilentHops++
	}

	_ = n
	return c.conditioned, c.quality, nil
}

// CalibrateDC measures the mean of a silence interval (a caller-supplied
// sequence of raw hops believed to contain no signal) and returns it as the
// bias to use for subsequent Ingest calls. It does not mutate c; the caller
// applies the result via Core.CalibrateDC so it can also be persisted.
func CalibrateDC(silenceHops [][]int32) float32 {
	var sum float64
	var count int
	for _, hop := range silenceHops {
		for _, s := range hop {
			sum += float64(s)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float32(sum / float64(count))
}

// SetDCBias overrides the calibrated DC bias, used after CalibrateDC or when
// loading a persisted calibration at init.
func (c *CaptureConditioner) SetDCBias(bias float32) {
	c.dcBias = int32(bias)
}

// Reset restores the conditioner to its constructed defaults (for
// Core.ResetDSPState), preserving the calibrated DC bias per spec section 5.
func (c *CaptureConditioner) Reset() {
	c.consecutiveZeroHops = 0
	c.quality = SignalQuality{}
	c.peakEMA = 0
	c.noiseEMA = 1e-6
	for i := range c.conditioned {
		c.conditioned[i] = 0
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
