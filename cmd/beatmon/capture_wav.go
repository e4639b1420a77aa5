// capture_wav.go - WAV file capture source, always built.
//
// Grounded on the corpus's one WAV-handling reference (a MOD player that
// writes wav.Sample records via github.com/youpy/go-wav); here the same
// library is used on the read side to drive the pipeline from a file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"
)

type wavSource struct {
	f          *os.File
	reader     *wav.Reader
	sampleRate int
	hopSize    int
}

func newWavSource(path string, hopSize int) (*wavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("beatmon: open wav %q: %w", path, err)
	}
	reader := wav.NewReader(f)
	format, err := reader.Format()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("beatmon: read wav format %q: %w", path, err)
	}
	return &wavSource{
		f:          f,
		reader:     reader,
		sampleRate: int(format.SampleRate),
		hopSize:    hopSize,
	}, nil
}

func (s *wavSource) SampleRate() int { return s.sampleRate }

func (s *wavSource) Close() error { return s.f.Close() }

func (s *wavSource) Hop(buf []int32) error {
	samples, err := s.reader.ReadSamples(len(buf))
	if err != nil && err != io.EOF {
		return fmt.Errorf("beatmon: read wav samples: %w", err)
	}
	for i := range buf {
		if i < len(samples) {
			buf[i] = int32(samples[i].Values[0])
		} else {
			buf[i] = 0
		}
	}
	if len(samples) == 0 {
		return io.EOF
	}
	return nil
}
