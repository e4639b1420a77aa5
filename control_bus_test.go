package beatcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlBusPublisher_LoadNilBeforeFirstPublish(t *testing.T) {
	p := NewControlBusPublisher()
	assert.Nil(t, p.Load())
}

func TestControlBusPublisher_PublishThenLoadRoundTrips(t *testing.T) {
	p := NewControlBusPublisher()
	frame := &ControlBusFrame{HopSeq: 1, BPM: 120}
	require.NoError(t, p.Publish(frame))
	assert.Equal(t, frame, p.Load())
}

func TestControlBusPublisher_RejectsNonMonotonicHopSeq(t *testing.T) {
	p := NewControlBusPublisher()
	require.NoError(t, p.Publish(&ControlBusFrame{HopSeq: 5}))
	err := p.Publish(&ControlBusFrame{HopSeq: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))

	err = p.Publish(&ControlBusFrame{HopSeq: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestControlBusPublisher_AcceptsStrictlyIncreasingSeq(t *testing.T) {
	p := NewControlBusPublisher()
	for seq := uint32(1); seq <= 10; seq++ {
		require.NoError(t, p.Publish(&ControlBusFrame{HopSeq: seq}))
	}
	assert.Equal(t, uint32(10), p.Load().HopSeq)
}

func TestControlBusFrame_CloneIsIndependent(t *testing.T) {
	f := &ControlBusFrame{HopSeq: 1, Spectrum: []float32{1, 2, 3}}
	clone := f.Clone()
	clone.Spectrum[0] = 99
	assert.Equal(t, float32(1), f.Spectrum[0])
	assert.Nil(t, (*ControlBusFrame)(nil).Clone())
}
