// clicktrack.go - oto-backed metronome, sonifying BeatClockState instead of
// a SoundChip's sample ring.
//
// Directly adapts the teacher's OtoPlayer (audio_backend_oto.go): the same
// atomic.Pointer read-side with a lock only around setup/control, the same
// pre-allocated sample buffer grown on demand rather than reallocated every
// Read. Here the "chip" being read from is the beat clock's published
// state, and Read synthesizes a short decaying click instead of mixing
// channels.

package main

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
	"github.com/synqing/beatcore"
)

type clickTrack struct {
	ctx       *oto.Context
	player    *oto.Player
	bus       atomic.Pointer[beatcore.ControlBusPublisher]
	sampleBuf []float32

	sampleRate int
	lastSeq    uint32
	clickLeft  int // samples remaining in the current click's decay envelope

	started bool
	mutex   sync.Mutex
}

func newClickTrack(sampleRate int, bus *beatcore.ControlBusPublisher) (*clickTrack, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	ct := &clickTrack{ctx: ctx, sampleRate: sampleRate, sampleBuf: make([]float32, 4096)}
	ct.bus.Store(bus)
	ct.player = ctx.NewPlayer(ct)
	return ct, nil
}

// Read implements io.Reader for oto.Player. Each call advances the click
// envelope and starts a short decaying tone when the latest published frame
// is new since the last Read and carries a beat tick; ticks on frames
// published between two Reads and overwritten before the second are not seen.
func (ct *clickTrack) Read(p []byte) (int, error) {
	bus := ct.bus.Load()
	numSamples := len(p) / 4
	if len(ct.sampleBuf) < numSamples {
		ct.sampleBuf = make([]float32, numSamples)
	}
	samples := ct.sampleBuf[:numSamples]

	frame := bus.Load()
	if frame != nil && frame.HopSeq != ct.lastSeq {
		ct.lastSeq = frame.HopSeq
		if frame.BeatTick {
			ct.clickLeft = ct.sampleRate / 20 // 50ms click
		}
	}

	const clickHz = 1800.0
	clickSamples := ct.sampleRate / 20
	for i := range samples {
		if ct.clickLeft > 0 {
			elapsed := clickSamples - ct.clickLeft
			t := float64(elapsed) / float64(ct.sampleRate)
			envelope := 1.0 - float64(elapsed)/float64(clickSamples)
			samples[i] = float32(envelope * math.Sin(2*math.Pi*clickHz*t))
			ct.clickLeft--
		} else {
			samples[i] = 0
		}
	}

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

func (ct *clickTrack) Start() {
	ct.mutex.Lock()
	defer ct.mutex.Unlock()
	if !ct.started {
		ct.player.Play()
		ct.started = true
	}
}

func (ct *clickTrack) Stop() {
	ct.mutex.Lock()
	defer ct.mutex.Unlock()
	if ct.started {
		ct.player.Close()
		ct.started = false
	}
}
