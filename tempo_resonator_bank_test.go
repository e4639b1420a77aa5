package beatcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempoResonatorBank_FullScanCoverage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tempo.Bins = 41
	cfg.Tempo.ScanBinsPerHop = 3
	bank := NewTempoResonatorBank(cfg, 100)
	curve := NewNoveltyCurve(cfg.Novelty.HistoryLen)
	for i := 0; i < cfg.Novelty.HistoryLen; i++ {
		curve.Push(float32(i%7) * 0.1)
	}

	hops := (bank.BinCount() + bank.ScanPerHop() - 1) / bank.ScanPerHop()
	for i := 0; i < hops; i++ {
		bank.Process(curve)
	}
	// Every bin has now been scanned at least once; MagnitudeAt should
	// return a finite, non-negative value across the whole BPM range.
	for bpm := cfg.Tempo.MinBPM; bpm <= cfg.Tempo.MaxBPM; bpm += 5 {
		m := bank.MagnitudeAt(bpm)
		require.GreaterOrEqual(t, m, float32(0))
	}
}

func TestTempoResonatorBank_TopKSortedDescending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tempo.TopK = 5
	bank := NewTempoResonatorBank(cfg, 100)
	curve := NewNoveltyCurve(cfg.Novelty.HistoryLen)
	for i := 0; i < cfg.Novelty.HistoryLen; i++ {
		curve.Push(float32(i%11) * 0.05)
	}
	for i := 0; i < bank.BinCount(); i++ {
		bank.Process(curve)
	}
	candidates := bank.Process(curve)
	require.LessOrEqual(t, len(candidates), cfg.Tempo.TopK)
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].MagnitudeNrm, candidates[i].MagnitudeNrm)
	}
}

func TestTempoResonatorBank_ResetPreservesCoefficients(t *testing.T) {
	cfg := DefaultConfig()
	bank := NewTempoResonatorBank(cfg, 100)
	before := make([]float32, bank.BinCount())
	for i := range bank.bins {
		before[i] = bank.bins[i].Coeff
	}
	bank.Reset()
	for i := range bank.bins {
		assert.Equal(t, before[i], bank.bins[i].Coeff)
		assert.Equal(t, float32(0), bank.bins[i].Magnitude)
	}
}

func TestWrapPi_StaysInRange(t *testing.T) {
	for _, x := range []float32{0, 10, -10, 100, -100, 3.14159, -3.14159} {
		w := wrapPi(x)
		assert.GreaterOrEqual(t, w, float32(-3.1416))
		assert.Less(t, w, float32(3.1416))
	}
}
