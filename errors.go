// errors.go - error taxonomy for the beat-tracker core (spec section 7)

package beatcore

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is the only error the core treats as unrecoverable
// (spec section 7). The core returns it when hop_seq fails to advance
// (ControlBusPublisher.Publish); the Goertzel coefficient check is reported
// by Core.GoertzelChecksumOK as a bool, not through this error. The host
// decides to restart the core on this.
var ErrInvariantViolation = errors.New("beatcore: invariant violation")

// ShortHopError reports that a hop arrived with fewer samples than the
// configured hop size. The hop is discarded; the pipeline does not advance.
type ShortHopError struct {
	Got, Want int
}

func (e *ShortHopError) Error() string {
	return fmt.Sprintf("beatcore: short hop: got %d samples, want %d", e.Got, e.Want)
}

// InvariantViolationError wraps ErrInvariantViolation with the specific
// invariant that failed, for logging and test assertions.
type InvariantViolationError struct {
	Invariant string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("beatcore: invariant violation: %s", e.Invariant)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

func newInvariantViolation(format string, args ...any) error {
	return &InvariantViolationError{Invariant: fmt.Sprintf(format, args...)}
}
