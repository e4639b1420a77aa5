package beatcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRingWindow_SnapshotOrder(t *testing.T) {
	w := NewRingWindow(4)
	w.Append([]float32{1, 2, 3})
	out := make([]float32, 4)
	w.Snapshot(out)
	assert.Equal(t, []float32{0, 1, 2, 3}, out)

	w.Append([]float32{4, 5})
	w.Snapshot(out)
	assert.Equal(t, []float32{2, 3, 4, 5}, out)
}

func TestRingWindow_FilledTracksTotal(t *testing.T) {
	w := NewRingWindow(8)
	assert.False(t, w.Filled())
	w.Append(make([]float32, 7))
	assert.False(t, w.Filled())
	w.Append([]float32{1})
	assert.True(t, w.Filled())
}

func TestRingWindow_ResetZeroes(t *testing.T) {
	w := NewRingWindow(4)
	w.Append([]float32{1, 2, 3, 4})
	w.Reset()
	out := make([]float32, 4)
	w.Snapshot(out)
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
	assert.False(t, w.Filled())
}

func TestRingWindow_SnapshotNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 64).Draw(t, "size")
		w := NewRingWindow(size)
		hops := rapid.SliceOfN(rapid.SliceOfN(rapid.Float32(), 0, 17), 0, 20).Draw(t, "hops")
		for _, h := range hops {
			w.Append(h)
		}
		out := make([]float32, size)
		require.NotPanics(t, func() { w.Snapshot(out) })
	})
}
