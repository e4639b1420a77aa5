//go:build live

// capture_live.go - live microphone capture via PortAudio, gated behind the
// "live" build tag the same way the teacher's audio_backend_oto.go /
// audio_backend_headless.go split the real backend from the headless one.

package main

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type liveSource struct {
	stream     *portaudio.Stream
	sampleRate int

	mu  sync.Mutex
	buf []int32
}

func newLiveSource(sampleRate, hopSize int) (*liveSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("beatmon: portaudio init: %w", err)
	}

	s := &liveSource{sampleRate: sampleRate}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), hopSize, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("beatmon: open default input stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("beatmon: start input stream: %w", err)
	}
	return s, nil
}

func (s *liveSource) callback(in []int32) {
	s.mu.Lock()
	s.buf = append(s.buf[:0], in...)
	s.mu.Unlock()
}

func (s *liveSource) SampleRate() int { return s.sampleRate }

func (s *liveSource) Hop(buf []int32) error {
	s.mu.Lock()
	copy(buf, s.buf)
	s.mu.Unlock()
	return nil
}

func (s *liveSource) Close() error {
	err := s.stream.Stop()
	s.stream.Close()
	portaudio.Terminate()
	return err
}
