package beatcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNoveltyDetector_FluxZeroOnConstantSpectrum(t *testing.T) {
	cfg := DefaultConfig()
	d := NewNoveltyDetector(8, 100, cfg)
	mag := []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	d.Process(mag)
	result := d.Process(mag)
	assert.InDelta(t, float32(0), result.Raw, 1e-6, "no positive flux when the spectrum doesn't change")
}

func TestNoveltyDetector_RisingEnergyProducesPositiveFlux(t *testing.T) {
	cfg := DefaultConfig()
	d := NewNoveltyDetector(4, 100, cfg)
	d.Process([]float32{0, 0, 0, 0})
	result := d.Process([]float32{1, 1, 1, 1})
	assert.Greater(t, result.Raw, float32(0))
}

func TestNoveltyDetector_SilenceGateDecaysCurve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Novelty.SilenceWindowSeconds = 0.05 // small window, 5 hops at 100Hz
	cfg.Novelty.SilenceEpsilon = 1e-3
	d := NewNoveltyDetector(4, 100, cfg)

	mag := []float32{0.01, 0.01, 0.01, 0.01}
	var last NoveltyResult
	for i := 0; i < 10; i++ {
		last = d.Process(mag)
	}
	assert.True(t, last.Silence)
}

func TestNoveltyDetector_ZScoreClamped(t *testing.T) {
	cfg := DefaultConfig()
	d := NewNoveltyDetector(4, 100, cfg)
	rapid.Check(t, func(t *rapid.T) {
		mag := rapid.SliceOfN(rapid.Float32Range(0, 5), 4, 4).Draw(t, "mag")
		result := d.Process(mag)
		require.GreaterOrEqual(t, result.Z, -cfg.Novelty.ZClamp)
		require.LessOrEqual(t, result.Z, cfg.Novelty.ZClamp)
	})
}

func TestNoveltyCurve_AtZeroIsMostRecent(t *testing.T) {
	c := NewNoveltyCurve(4)
	c.Push(1)
	c.Push(2)
	c.Push(3)
	assert.Equal(t, float32(3), c.At(0))
	assert.Equal(t, float32(2), c.At(1))
	assert.Equal(t, float32(1), c.At(2))
}

func TestNoveltyCurve_LenCapsAtSize(t *testing.T) {
	c := NewNoveltyCurve(3)
	for i := 0; i < 10; i++ {
		c.Push(float32(i))
	}
	assert.Equal(t, 3, c.Len())
}
