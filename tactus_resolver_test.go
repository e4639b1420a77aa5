package beatcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeMagnitudeSource lets tests pin MagnitudeAt to arbitrary values without
// running the full resonator bank.
type fakeMagnitudeSource struct {
	at func(bpm float32) float32
}

func (f fakeMagnitudeSource) MagnitudeAt(bpm float32) float32 {
	if f.at == nil {
		return 0
	}
	return f.at(bpm)
}

func TestTactusResolver_LocksAfterSustainedWinner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tactus.PendingVerifyMs = 100
	r := NewTactusResolver(cfg)
	bank := fakeMagnitudeSource{at: func(bpm float32) float32 { return 0 }}

	candidates := []ResonatorCandidate{{BPM: 120, MagnitudeNrm: 1.0, Phase: 0}}

	var out ResolverOutput
	for ms := int64(0); ms < 3000; ms += 10 {
		out = r.Process(candidates, bank, ms)
	}
	assert.Equal(t, LockVerified, out.LockState)
	assert.True(t, out.Locked)
	assert.InDelta(t, float32(120), out.LockedBPM, 5)
}

func TestTactusResolver_NoCandidatesEventuallyUnlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tactus.FailureTimeoutSeconds = 0.05
	r := NewTactusResolver(cfg)
	bank := fakeMagnitudeSource{}

	out := r.Process(nil, bank, 0)
	assert.False(t, out.Locked)
	out = r.Process(nil, bank, 100)
	assert.Equal(t, LockUnlocked, out.LockState)
	assert.False(t, out.Locked)
}

func TestTactusResolver_ConfidenceBounded(t *testing.T) {
	cfg := DefaultConfig()
	r := NewTactusResolver(cfg)
	bank := fakeMagnitudeSource{at: func(bpm float32) float32 { return 0.3 }}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		candidates := make([]ResonatorCandidate, n)
		for i := range candidates {
			candidates[i] = ResonatorCandidate{
				BPM:          rapid.Float32Range(40, 200).Draw(t, "bpm"),
				MagnitudeNrm: rapid.Float32Range(0, 1).Draw(t, "mag"),
			}
		}
		out := r.Process(candidates, bank, int64(rapid.IntRange(0, 100000).Draw(t, "ms")))
		require.GreaterOrEqual(t, out.Confidence, float32(0))
		require.LessOrEqual(t, out.Confidence, float32(1))
	})
}

func TestTactusResolver_ResetReturnsToUnlocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tactus.PendingVerifyMs = 10
	r := NewTactusResolver(cfg)
	bank := fakeMagnitudeSource{}
	candidates := []ResonatorCandidate{{BPM: 100, MagnitudeNrm: 1.0}}
	for ms := int64(0); ms < 200; ms += 10 {
		r.Process(candidates, bank, ms)
	}
	require.Equal(t, LockVerified, r.State().LockState)

	r.Reset()
	assert.Equal(t, LockUnlocked, r.State().LockState)
	assert.Equal(t, float32(0), r.State().LockedBPM)
}

func TestTactusResolver_OctaveOverridePrefersDoubledTempoWhenDense(t *testing.T) {
	cfg := DefaultConfig()
	r := NewTactusResolver(cfg)
	// A slow winner at 60 BPM whose doubled tempo (120) has a much stronger
	// bank magnitude and sits closer to the prior center: the override should
	// promote it.
	bank := fakeMagnitudeSource{at: func(bpm float32) float32 {
		if bpm > 115 && bpm < 125 {
			return 1.0
		}
		return 0.05
	}}
	candidates := []ResonatorCandidate{{BPM: 60, MagnitudeNrm: 0.5}}
	out := r.Process(candidates, bank, 0)
	assert.InDelta(t, float32(120), out.LockedBPM, 1)
}
