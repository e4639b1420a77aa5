//go:build !live

// capture_live_stub.go - placeholder for the default (headless) build, the
// counterpart of audio_backend_headless.go's role for the real backend.

package main

import "fmt"

func newLiveSource(sampleRate, hopSize int) (captureSource, error) {
	return nil, fmt.Errorf("beatmon: built without the 'live' tag; rebuild with -tags live for microphone capture")
}
