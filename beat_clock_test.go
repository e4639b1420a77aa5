package beatcore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBeatClock_FreeRunsBeforeFirstLock(t *testing.T) {
	cfg := DefaultConfig()
	c := NewBeatClock(cfg)
	tick, downbeat := c.Advance(0.01)
	assert.False(t, tick)
	assert.False(t, downbeat)
	assert.Equal(t, float32(0), c.State().BPMEff)
}

func TestBeatClock_TicksAtExpectedRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock.TickDebounceFraction = 0.1
	c := NewBeatClock(cfg)
	c.Correct(0, 120, true) // first lock snaps directly to 120 BPM, phase 0

	periodSeconds := float32(60.0 / 120.0)
	ticks := 0
	const dt = 0.001
	for elapsed := float32(0); elapsed < periodSeconds*3.5; elapsed += dt {
		tick, _ := c.Advance(dt)
		if tick {
			ticks++
		}
	}
	assert.InDelta(t, 3, ticks, 1, "~3 ticks should fire over 3.5 beat periods")
}

func TestBeatClock_DownbeatEveryBarLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock.BarLengthBeats = 2
	cfg.Clock.TickDebounceFraction = 0.1
	c := NewBeatClock(cfg)
	c.Correct(0, 240, true) // fast tempo, fewer iterations needed

	periodSeconds := float32(60.0 / 240.0)
	var downbeats, ticks int
	const dt = 0.0005
	for elapsed := float32(0); elapsed < periodSeconds*6; elapsed += dt {
		tick, downbeat := c.Advance(dt)
		if tick {
			ticks++
		}
		if downbeat {
			downbeats++
		}
	}
	if ticks > 0 {
		assert.InDelta(t, ticks/2, downbeats, 1)
	}
}

func TestBeatClock_BigChangeSnapsInsteadOfCorrecting(t *testing.T) {
	cfg := DefaultConfig()
	c := NewBeatClock(cfg)
	c.Correct(0, 100, true)
	c.Correct(1.0, 200, true) // jump far exceeds BigChangeThresholdBPM
	assert.Equal(t, float32(200), c.State().BPMEff)
	assert.InDelta(t, float32(1.0), c.State().PhaseRad, 1e-5)
}

func TestBeatClock_ResetClearsEverything(t *testing.T) {
	cfg := DefaultConfig()
	c := NewBeatClock(cfg)
	c.Correct(0.5, 128, true)
	c.Advance(0.01)
	c.Reset()
	assert.Equal(t, BeatClockState{}, c.State())
}

func TestBeatClock_PhaseAlwaysWrapped(t *testing.T) {
	cfg := DefaultConfig()
	rapid.Check(t, func(t *rapid.T) {
		c := NewBeatClock(cfg)
		bpm := rapid.Float32Range(40, 200).Draw(t, "bpm")
		c.Correct(0, bpm, true)
		steps := rapid.IntRange(0, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			c.Advance(0.01)
		}
		phase := c.State().PhaseRad
		require.GreaterOrEqual(t, phase, float32(-math.Pi))
		require.Less(t, phase, float32(math.Pi))
	})
}
