// tempo_resonator_bank.go - bank of narrow-band tempo resonators (spec 4.5)

package beatcore

import (
	"math"
	"sort"
)

// TempoResonatorBank runs a Goertzel filter per tempo bin against the
// novelty history, treating novelty as a signal sampled at the hop rate.
// To stay within the per-hop time budget it refreshes a round-robin subset
// of bins each hop (spec 4.5, "Workload").
type TempoResonatorBank struct {
	bins        []TempoBin
	hopRateHz   float32
	beatShiftHz float32 // beta, fraction-of-beat phase shift in radians, precomputed below
	alphaMin    float32
	alphaMax    float32
	topK        int

	scanPerHop int
	cursor     int

	scratch    []float32            // reused novelty-window scratch, sized to the largest block
	candidates []ResonatorCandidate // preallocated top-candidates scratch, sized to bin count
}

// NewTempoResonatorBank builds B resonators spanning [MinBPM, MaxBPM] using
// cfg.Tempo, tuned to a novelty stream sampled at hopRateHz.
func NewTempoResonatorBank(cfg *Config, hopRateHz float32) *TempoResonatorBank {
	b := cfg.Tempo.Bins
	bank := &TempoResonatorBank{
		bins:       make([]TempoBin, b),
		hopRateHz:  hopRateHz,
		alphaMin:   cfg.Tempo.SmoothingAlphaMin,
		alphaMax:   cfg.Tempo.SmoothingAlphaMax,
		topK:       cfg.Tempo.TopK,
		scanPerHop: cfg.Tempo.ScanBinsPerHop,
	}

	bpms := make([]float32, b)
	for i := 0; i < b; i++ {
		if b == 1 {
			bpms[i] = cfg.Tempo.MinBPM
		} else {
			t := float32(i) / float32(b-1)
			bpms[i] = cfg.Tempo.MinBPM + t*(cfg.Tempo.MaxBPM-cfg.Tempo.MinBPM)
		}
	}

	maxBlock := 0
	for i := 0; i < b; i++ {
		bpm := bpms[i]
		fHz := bpm / 60.0

		var deltaHz float32
		switch {
		case i == 0 && b > 1:
			deltaHz = (bpms[1] - bpms[0]) / 60.0
		case i == b-1 && b > 1:
			deltaHz = (bpms[i] - bpms[i-1]) / 60.0
		case b > 1:
			lo := (bpms[i] - bpms[i-1]) / 60.0
			hi := (bpms[i+1] - bpms[i]) / 60.0
			deltaHz = minFloat32(lo, hi)
		default:
			deltaHz = fHz / 4
		}
		if deltaHz <= 0 {
			deltaHz = fHz / 24
		}

		blockSize := int(math.Ceil(float64(hopRateHz) / (float64(deltaHz) / 2)))
		if blockSize < 16 {
			blockSize = 16
		}
		if blockSize > cfg.Novelty.HistoryLen {
			blockSize = cfg.Novelty.HistoryLen
		}
		if blockSize > maxBlock {
			maxBlock = blockSize
		}

		omega := 2 * math.Pi * float64(fHz) / float64(hopRateHz)
		bank.bins[i] = TempoBin{
			BPM:        bpm,
			Coeff:      float32(2 * math.Cos(omega)),
			Sine:       float32(math.Sin(omega)),
			Cosine:     float32(math.Cos(omega)),
			BlockSize:  blockSize,
			WindowStep: 1,
			Window:     gaussianWindow(blockSize),
		}
	}

	bank.scratch = make([]float32, maxBlock)
	bank.beatShiftHz = float32(2 * math.Pi * float64(cfg.Tempo.BeatShift))
	bank.candidates = make([]ResonatorCandidate, b)
	return bank
}

// Process scans a round-robin subset of bins against the novelty curve,
// updates their smoothed magnitude/phase, and returns the top-K candidates
// by smoothed magnitude, sorted descending (spec 4.5).
func (b *TempoResonatorBank) Process(curve *NoveltyCurve) []ResonatorCandidate {
	n := len(b.bins)
	if n == 0 {
		return nil
	}
	scanned := 0
	for scanned < b.scanPerHop && scanned < n {
		idx := (b.cursor + scanned) % n
		b.scanBin(&b.bins[idx], curve)
		scanned++
	}
	b.cursor = (b.cursor + b.scanPerHop) % n

	return b.topCandidates()
}

func (b *TempoResonatorBank) scanBin(bin *TempoBin, curve *NoveltyCurve) {
	avail := curve.Len()
	blockSize := bin.BlockSize
	if blockSize > avail {
		blockSize = avail
	}
	if blockSize == 0 {
		return
	}

	// bin.Window is precomputed at construction for bin.BlockSize; at
	// startup, before the novelty history has filled, blockSize shrinks to
	// avail and we take the window's leading slice rather than recomputing
	// a fresh one (spec 5: no allocation after init).
	window := bin.Window[:blockSize]

	// Novelty curve stores most-recent-first via At(0); Goertzel wants
	// chronological order, so walk from oldest to newest within the block.
	var q1, q2 float32
	for j := 0; j < blockSize; j++ {
		// sample at position j (0=oldest in this block) is At(blockSize-1-j)
		x := curve.At(blockSize-1-j) * window[j]
		q0 := bin.Coeff*q1 - q2 + x
		q2 = q1
		q1 = q0
	}

	magSq := q1*q1 + q2*q2 - q1*q2*bin.Coeff
	if magSq < 0 {
		magSq = 0
	}
	mag := float32(math.Sqrt(float64(magSq)))

	real := q1 - q2*bin.Cosine
	imag := q2 * bin.Sine
	rawPhase := float32(math.Atan2(float64(imag), float64(real))) + b.beatShiftHz
	rawPhase = wrapPi(rawPhase)

	delta := wrapPi(rawPhase - bin.Phase)
	if absf32(delta) > 2.5 {
		bin.PhaseInverted = !bin.PhaseInverted
	}
	bin.Phase = rawPhase

	// Smoothing alpha scaled by tempo (BPM/180 of the way from alphaMin to
	// alphaMax): alpha weights the previous smoothed value, so faster bins
	// (higher BPM) smooth more heavily and respond more slowly.
	span := b.alphaMax - b.alphaMin
	t := float32(0)
	if len(b.bins) > 1 {
		t = float32(bin.BPM) / 180.0
	}
	alpha := b.alphaMin + t*span

	bin.Magnitude = mag
	bin.MagnitudeSmooth = alpha*bin.MagnitudeSmooth + (1-alpha)*mag
}

// topCandidates returns the top-K candidates by smoothed magnitude, sorted
// descending, reusing the bank's preallocated scratch slice (spec 5: no
// allocation after init). The returned slice aliases that scratch buffer and
// is only valid until the next call to Process.
func (b *TempoResonatorBank) topCandidates() []ResonatorCandidate {
	n := len(b.bins)
	if n == 0 {
		return nil
	}

	// Find the running max for normalization.
	var maxMag float32
	for i := range b.bins {
		if b.bins[i].MagnitudeSmooth > maxMag {
			maxMag = b.bins[i].MagnitudeSmooth
		}
	}
	if maxMag <= 0 {
		maxMag = 1
	}

	all := b.candidates[:0]
	for i := range b.bins {
		bpm := b.bins[i].BPM
		magS := b.bins[i].MagnitudeSmooth

		// 3-point parabolic interpolation around local peaks for a
		// sub-bin BPM estimate.
		if i > 0 && i < n-1 {
			left := b.bins[i-1].MagnitudeSmooth
			right := b.bins[i+1].MagnitudeSmooth
			denom := left - 2*magS + right
			if denom != 0 {
				offset := 0.5 * (left - right) / denom
				if offset > -1 && offset < 1 {
					step := b.bins[i+1].BPM - b.bins[i].BPM
					bpm += offset * step
				}
			}
		}

		all = append(all, ResonatorCandidate{
			BPM:          bpm,
			MagnitudeNrm: magS / maxMag,
			RawMagnitude: b.bins[i].Magnitude,
			Phase:        b.bins[i].Phase,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].MagnitudeNrm > all[j].MagnitudeNrm
	})

	k := b.topK
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

// BinCount reports how many tempo bins the bank holds (for scan-coverage
// tests: every bin must refresh within ceil(B/scanPerHop) hops).
func (b *TempoResonatorBank) BinCount() int {
	return len(b.bins)
}

// ScanPerHop reports the round-robin batch size.
func (b *TempoResonatorBank) ScanPerHop() int {
	return b.scanPerHop
}

// MagnitudeAt exposes a single bin's smoothed magnitude for a given BPM
// (nearest bin), used by TactusResolver's octave/half-double scoring.
func (b *TempoResonatorBank) MagnitudeAt(bpm float32) float32 {
	if len(b.bins) == 0 {
		return 0
	}
	bestIdx := 0
	bestDist := absf32(b.bins[0].BPM - bpm)
	for i := 1; i < len(b.bins); i++ {
		d := absf32(b.bins[i].BPM - bpm)
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}
	var maxMag float32 = 1
	for i := range b.bins {
		if b.bins[i].MagnitudeSmooth > maxMag {
			maxMag = b.bins[i].MagnitudeSmooth
		}
	}
	return b.bins[bestIdx].MagnitudeSmooth / maxMag
}

// Reset clears all resonator state while preserving the fixed Goertzel
// coefficients computed at construction (spec section 5).
func (b *TempoResonatorBank) Reset() {
	for i := range b.bins {
		b.bins[i].Magnitude = 0
		b.bins[i].MagnitudeSmooth = 0
		b.bins[i].Phase = 0
		b.bins[i].PhaseInverted = false
	}
	b.cursor = 0
}

func wrapPi(x float32) float32 {
	for x >= math.Pi {
		x -= 2 * math.Pi
	}
	for x < -math.Pi {
		x += 2 * math.Pi
	}
	return x
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
