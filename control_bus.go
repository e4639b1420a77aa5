// control_bus.go - lock-free publication of the control-bus frame (spec 4.8)
//
// Mirrors the teacher's OtoPlayer (audio_backend_oto.go): an atomic.Pointer
// swapped with release semantics on the writer side and read with acquire
// semantics on the reader side, so the visual consumer always sees a
// torn-free, monotonically increasing hop_seq with "latest frame wins"
// semantics and no queueing.

package beatcore

import "sync/atomic"

// ControlBusPublisher holds the single published slot. The writer (Core,
// on the audio thread) calls Publish once per hop; any number of consumer
// goroutines may call Load concurrently.
type ControlBusPublisher struct {
	slot atomic.Pointer[ControlBusFrame]
	lastSeq uint32
	published bool
}

// NewControlBusPublisher returns a publisher with no frame published yet;
// Load returns nil until the first Publish.
func NewControlBusPublisher() *ControlBusPublisher {
	return &ControlBusPublisher{}
}

// Publish stores frame as the latest snapshot. frame must not be mutated by
// the caller afterward; Core always constructs a fresh value each hop.
// Publish enforces spec invariant 3 (hop_seq strictly monotonic) by
// returning an InvariantViolationError instead of publishing if frame.HopSeq
// does not exceed the previously published sequence.
func (p *ControlBusPublisher) Publish(frame *ControlBusFrame) error {
	if p.published && frame.HopSeq <= p.lastSeq {
		return newInvariantViolation("hop_seq %d did not advance past %d", frame.HopSeq, p.lastSeq)
	}
	p.published = true
	p.lastSeq = frame.HopSeq
	p.slot.Store(frame)
	return nil
}

// Load returns the most recently published frame, or nil if none has been
// published yet. The returned pointer is safe to read but callers that
// retain it across further Publish calls should copy it (ControlBusFrame.Clone)
// since the publisher may reuse the backing Spectrum slice of future frames
// only if Core is built to reuse one — Core in this package always builds a
// fresh frame, so no copy is required, but Clone remains available for
// consumers that want an explicit ownership boundary.
func (p *ControlBusPublisher) Load() *ControlBusFrame {
	return p.slot.Load()
}
