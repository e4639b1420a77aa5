// goertzel_bank.go - semitone-spaced Goertzel filter bank (spec 4.3)

package beatcore

import "math"

type goertzelBin struct {
	// Configuration, computed once at construction and never mutated again
	// (spec invariant 5: checked via Checksum).
	freqHz    float32
	coeff     float32
	sine      float32
	cosine    float32
	blockSize int
	window    []float32 // gaussian analysis window, length blockSize

	// Per-frame state.
	scaleMax float32 // running auto-range max
}

// GoertzelBank computes a K-bin semitone-spaced magnitude spectrum from the
// ring window each hop. It never fails: an all-zero input simply produces a
// zero spectrum (spec 4.3, "Failure").
type GoertzelBank struct {
	sampleRate     int
	bins           []goertzelBin
	floor          float32
	autoRangeAlpha float32

	scratch []float32 // reused tail-of-window scratch buffer, len == windowSize
	out     []float32 // preallocated output magnitudes, len == K

	initChecksum uint64
}

// NewGoertzelBank builds K semitone-spaced filters starting at cfg.Spectrum.RootHz,
// sized against a ring window of windowSize samples captured at sampleRate Hz.
func NewGoertzelBank(cfg *Config, sampleRate, windowSize int) *GoertzelBank {
	k := cfg.Spectrum.Bins
	bank := &GoertzelBank{
		sampleRate:     sampleRate,
		bins:           make([]goertzelBin, k),
		floor:          cfg.Spectrum.AutoRangeFloor,
		autoRangeAlpha: hopAlphaForTau(cfg.Spectrum.AutoRangeTauSeconds),
		scratch:        make([]float32, windowSize),
		out:            make([]float32, k),
	}

	freqs := make([]float32, k)
	for i := 0; i < k; i++ {
		// Semitone spacing: f_i = root * 2^(i/12).
		freqs[i] = cfg.Spectrum.RootHz * float32(math.Pow(2, float64(i)/12.0))
	}

	for i := 0; i < k; i++ {
		f := freqs[i]
		// Neighbor spacing in Hz, used to size the block so adjacent bins
		// get at least one period of separation (spec 4.3).
		var deltaHz float32
		switch {
		case i == 0 && k > 1:
			deltaHz = freqs[1] - freqs[0]
		case i == k-1 && k > 1:
			deltaHz = freqs[i] - freqs[i-1]
		case k > 1:
			lo := freqs[i] - freqs[i-1]
			hi := freqs[i+1] - freqs[i]
			deltaHz = minFloat32(lo, hi)
		default:
			deltaHz = f / 2
		}
		if deltaHz <= 0 {
			deltaHz = f / 12
		}

		blockSize := int(math.Ceil(float64(sampleRate) / (float64(deltaHz) / 2)))
		if blockSize < 8 {
			blockSize = 8
		}
		if blockSize > windowSize {
			blockSize = windowSize
		}

		omega := 2 * math.Pi * float64(f) / float64(sampleRate)
		bank.bins[i] = goertzelBin{
			freqHz:    f,
			coeff:     float32(2 * math.Cos(omega)),
			sine:      float32(math.Sin(omega)),
			cosine:    float32(math.Cos(omega)),
			blockSize: blockSize,
			window:    gaussianWindow(blockSize),
			scaleMax:  0,
		}
	}

	bank.initChecksum = bank.computeChecksum()
	return bank
}

// gaussianWindow returns a Gaussian analysis window of the given length,
// sigma chosen relative to the block (spec 4.3 "gaussian analysis window").
func gaussianWindow(n int) []float32 {
	w := make([]float32, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	sigma := 0.4 * float64(n-1) / 2
	mid := float64(n-1) / 2
	for i := 0; i < n; i++ {
		x := (float64(i) - mid) / sigma
		w[i] = float32(math.Exp(-0.5 * x * x))
	}
	return w
}

func hopAlphaForTau(tauSeconds float32) float32 {
	if tauSeconds <= 0 {
		return 1
	}
	// At a 100Hz hop rate, tau seconds corresponds to tau*100 hops; alpha is
	// the EWMA weight on the newest sample for that time constant.
	tauHops := tauSeconds * 100
	return float32(1.0 / float64(tauHops))
}

func minFloat32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// Process runs the Goertzel recurrence for every bin against window and
// writes the auto-ranged, [0,1]-clamped magnitudes into the bank's
// preallocated output buffer, returned as a SpectralFrame. The returned
// slice is reused on the next call; copy it (see ControlBusFrame.Clone) to
// retain across hops.
func (g *GoertzelBank) Process(window *RingWindow) SpectralFrame {
	window.Snapshot(g.scratch)
	n := len(g.scratch)

	for i := range g.bins {
		b := &g.bins[i]
		start := n - b.blockSize
		if start < 0 {
			start = 0
		}
		seg := g.scratch[start:]

		var q1, q2 float32
		for j := 0; j < len(seg) && j < b.blockSize; j++ {
			x := seg[j] * b.window[j]
			q0 := b.coeff*q1 - q2 + x
			q2 = q1
			q1 = q0
		}

		magSq := q1*q1 + q2*q2 - q1*q2*b.coeff
		if magSq < 0 {
			magSq = 0
		}
		mag := float32(math.Sqrt(float64(magSq)))

		if mag > b.scaleMax {
			b.scaleMax = mag
		} else {
			b.scaleMax = (1-g.autoRangeAlpha)*b.scaleMax + g.autoRangeAlpha*mag
		}
		scale := b.scaleMax
		if scale < g.floor {
			scale = g.floor
		}

		v := mag / scale
		if v > 1 {
			v = 1
		}
		g.out[i] = v
	}

	return SpectralFrame{Magnitudes: g.out}
}

// Checksum returns a stable hash of the bank's per-bin configuration
// (coefficients, block sizes), used by tests to assert spec invariant 5:
// Goertzel coefficients never change after init.
func (g *GoertzelBank) Checksum() uint64 {
	return g.computeChecksum()
}

func (g *GoertzelBank) computeChecksum() uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	mix := func(f float32) {
		bits := math.Float32bits(f)
		h ^= uint64(bits)
		h *= 1099511628211
	}
	for _, b := range g.bins {
		mix(b.freqHz)
		mix(b.coeff)
		mix(b.sine)
		mix(b.cosine)
		mix(float32(b.blockSize))
	}
	return h
}

// VerifyChecksum reports whether the bank's coefficients still match the
// value computed at construction (spec invariant 5).
func (g *GoertzelBank) VerifyChecksum() bool {
	return g.computeChecksum() == g.initChecksum
}
