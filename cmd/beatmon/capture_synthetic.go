// capture_synthetic.go - click-free synthetic click-track generator, always built.
//
// Useful for exercising the pipeline without any hardware: emits a sine burst
// on a steady tempo so the tactus resolver has something to lock onto.

package main

import "math"

type syntheticSource struct {
	sampleRate int
	hopSize    int
	bpm        float64
	phase      float64
	beatPhase  float64
}

func newSyntheticSource(sampleRate, hopSize int) *syntheticSource {
	return &syntheticSource{sampleRate: sampleRate, hopSize: hopSize, bpm: 120}
}

func (s *syntheticSource) SampleRate() int { return s.sampleRate }

func (s *syntheticSource) Close() error { return nil }

func (s *syntheticSource) Hop(buf []int32) error {
	beatHz := s.bpm / 60
	toneHz := 220.0
	for i := range buf {
		s.beatPhase += beatHz / float64(s.sampleRate)
		if s.beatPhase >= 1 {
			s.beatPhase -= 1
		}
		// A short, decaying burst right after each beat boundary, otherwise
		// silence, so the novelty detector sees a clean onset per beat.
		envelope := 0.0
		if s.beatPhase < 0.05 {
			envelope = math.Exp(-s.beatPhase / 0.015)
		}

		s.phase += 2 * math.Pi * toneHz / float64(s.sampleRate)
		sample := envelope * math.Sin(s.phase)
		buf[i] = int32(7000 + 6000*sample)
	}
	return nil
}
