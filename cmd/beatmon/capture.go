// capture.go - capture-source abstraction shared by every collaborator below.

package main

import "fmt"

// captureSource delivers one hop of hopSize int32 samples per Hop call. A
// source that runs out of data (e.g. a WAV file) returns io.EOF.
type captureSource interface {
	Hop(buf []int32) error
	SampleRate() int
	Close() error
}

func newCaptureSource(kind, wavPath string, sampleRate, hopSize int) (captureSource, error) {
	switch kind {
	case "synthetic":
		return newSyntheticSource(sampleRate, hopSize), nil
	case "wav":
		return newWavSource(wavPath, hopSize)
	case "live":
		return newLiveSource(sampleRate, hopSize)
	default:
		return nil, fmt.Errorf("beatmon: unknown capture source %q", kind)
	}
}
