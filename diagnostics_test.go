package beatcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleFrame() *ControlBusFrame {
	return &ControlBusFrame{
		HopSeq:       42,
		TMs:          1000,
		Spectrum:     []float32{0.1, 0.2, 0.3},
		Novelty:      0.5,
		BPM:          128,
		BeatPhase01:  0.25,
		BeatTick:     true,
		DownbeatTick: false,
		Confidence:   0.8,
		Locked:       true,
		SignalQuality: SignalQuality{
			RMS:               0.1,
			DCOffset:          0.01,
			Peak:              0.9,
			ClipCount:         2,
			ZeroCount:         3,
			SNREstimate:       10,
			Clipping:          true,
			MicSilent:         true,
			CalibrationMissed: true,
			Counters: Counters{
				ShortHops:      5,
				ClipWarnings:   6,
				DeadlineMisses: 7,
				MicSilentHops:  8,
			},
		},
	}
}

func TestEncodeDecodeJSON_RoundTrips(t *testing.T) {
	f := sampleFrame()
	data, err := EncodeJSON(f)
	require.NoError(t, err)

	got, err := DecodeJSON(data)
	require.NoError(t, err)
	assert.Equal(t, f.HopSeq, got.HopSeq)
	assert.Equal(t, f.Novelty, got.Novelty)
	assert.Equal(t, f.BPM, got.BPM)
	assert.Equal(t, f.BeatPhase01, got.BeatPhase01)
	assert.Equal(t, f.BeatTick, got.BeatTick)
	assert.Equal(t, f.Confidence, got.Confidence)
	assert.Equal(t, f.Locked, got.Locked)
	assert.Equal(t, f.Spectrum, got.Spectrum)
	assert.Equal(t, f.SignalQuality, got.SignalQuality)
}

func TestEncodeDecodeBinary_RoundTrips(t *testing.T) {
	f := sampleFrame()
	buf := EncodeBinary(f)

	got, err := DecodeBinary(buf)
	require.NoError(t, err)
	assert.Equal(t, f.HopSeq, got.HopSeq)
	assert.Equal(t, f.Novelty, got.Novelty)
	assert.Equal(t, f.BPM, got.BPM)
	assert.Equal(t, f.BeatTick, got.BeatTick)
	assert.Equal(t, f.DownbeatTick, got.DownbeatTick)
	assert.Equal(t, f.Locked, got.Locked)
	assert.Equal(t, f.Confidence, got.Confidence)
	assert.Equal(t, f.TMs, got.TMs)
	assert.Equal(t, f.SignalQuality, got.SignalQuality)
	assert.Equal(t, f.Spectrum, got.Spectrum)
}

func TestDecodeBinary_RejectsBadMagic(t *testing.T) {
	buf := EncodeBinary(sampleFrame())
	buf[0] ^= 0xFF
	_, err := DecodeBinary(buf)
	require.Error(t, err)
}

func TestDecodeBinary_RejectsTruncatedBuffer(t *testing.T) {
	buf := EncodeBinary(sampleFrame())
	_, err := DecodeBinary(buf[:8])
	require.Error(t, err)
}

func TestEncodeBinary_RoundTripArbitrarySpectrum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 128).Draw(t, "n")
		f := sampleFrame()
		f.Spectrum = rapid.SliceOfN(rapid.Float32(), n, n).Draw(t, "spectrum")
		buf := EncodeBinary(f)
		got, err := DecodeBinary(buf)
		require.NoError(t, err)
		require.Equal(t, len(f.Spectrum), len(got.Spectrum))
	})
}
