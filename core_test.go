package beatcore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineHop(hopSize int, freqHz float64, sampleRate int, phase *float64) []int32 {
	out := make([]int32, hopSize)
	step := 2 * math.Pi * freqHz / float64(sampleRate)
	for i := range out {
		out[i] = int32(8000 + 6000*math.Sin(*phase))
		*phase += step
	}
	return out
}

func TestCore_ProcessHopPublishesMonotonicFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Size = 128
	cfg.Spectrum.Bins = 8
	cfg.Tempo.Bins = 21
	cfg.Novelty.HistoryLen = 64
	cfg.Novelty.SilenceWindowSeconds = 0.1
	const sampleRate = 8000
	const hopSize = 64

	core := NewCore(cfg, sampleRate, hopSize)
	phase := 0.0
	var lastSeq uint32
	for i := 0; i < 50; i++ {
		hop := sineHop(hopSize, 440, sampleRate, &phase)
		require.NoError(t, core.ProcessHop(hop))
		frame := core.Bus().Load()
		require.NotNil(t, frame)
		if i > 0 {
			assert.Greater(t, frame.HopSeq, lastSeq)
		}
		lastSeq = frame.HopSeq
	}
	assert.Equal(t, lastSeq+1, core.HopSeq())
}

func TestCore_ShortHopDoesNotAdvanceSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Size = 64
	cfg.Spectrum.Bins = 4
	cfg.Tempo.Bins = 11
	core := NewCore(cfg, 8000, 64)

	err := core.ProcessHop(make([]int32, 10))
	require.Error(t, err)
	assert.Equal(t, uint32(0), core.HopSeq())
	assert.Equal(t, uint32(1), core.Counters().ShortHops)
}

func TestCore_GoertzelChecksumSurvivesProcessing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Size = 64
	cfg.Spectrum.Bins = 4
	cfg.Tempo.Bins = 11
	core := NewCore(cfg, 8000, 64)
	phase := 0.0
	for i := 0; i < 20; i++ {
		_ = core.ProcessHop(sineHop(64, 220, 8000, &phase))
	}
	assert.True(t, core.GoertzelChecksumOK())
}

func TestCore_ResetDSPStateReturnsResolverToUnlocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Size = 64
	cfg.Spectrum.Bins = 4
	cfg.Tempo.Bins = 11
	cfg.Tactus.PendingVerifyMs = 1
	core := NewCore(cfg, 8000, 64)
	phase := 0.0
	for i := 0; i < 50; i++ {
		_ = core.ProcessHop(sineHop(64, 330, 8000, &phase))
	}
	core.ResetDSPState()
	assert.Equal(t, LockUnlocked, core.TactusState().LockState)
	assert.Equal(t, float32(0), core.BeatClockState().BPMEff)
}

func TestCore_CalibrateDCPersistsIntoConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Size = 64
	cfg.Spectrum.Bins = 4
	cfg.Tempo.Bins = 11
	core := NewCore(cfg, 8000, 64)

	silence := [][]int32{{7000, 7100, 6900}, {7050}}
	bias := core.CalibrateDC(silence)
	assert.True(t, cfg.Calibration.Calibrated)
	assert.Equal(t, bias, cfg.Calibration.DCBias)
}

func TestCore_ReconfigurePreservesCalibration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Size = 64
	cfg.Spectrum.Bins = 4
	cfg.Tempo.Bins = 11
	core := NewCore(cfg, 8000, 64)
	core.CalibrateDC([][]int32{{5000, 5000, 5000}})

	next := DefaultConfig()
	next.Window.Size = 64
	next.Spectrum.Bins = 4
	next.Tempo.Bins = 11
	next.Tactus.MinScore = 0.5
	core.Reconfigure(next)

	assert.True(t, next.Calibration.Calibrated)
	assert.Equal(t, float32(5000), next.Calibration.DCBias)
	assert.Equal(t, LockUnlocked, core.TactusState().LockState)
}
