// ring_window.go - rolling sample window for the spectral analyzer (spec 4.2)

package beatcore

// RingWindow maintains the most recent W samples with no per-hop allocation.
// Append is O(N); Snapshot is O(W) and only runs on the read side (once per
// hop, from GoertzelBank).
type RingWindow struct {
	buf  []float32
	size int
	head int // logical head: next slot to write, which holds the oldest retained sample
	total uint64
}

// NewRingWindow allocates a window of the given size, preallocated to all
// zeros (the spec's "unfilled positions are zero" invariant before the first
// W/N hops).
func NewRingWindow(size int) *RingWindow {
	return &RingWindow{buf: make([]float32, size), size: size}
}

// Append advances the head by len(hop) positions, wrapping around.
func (w *RingWindow) Append(hop []float32) {
	for _, s := range hop {
		w.buf[w.head] = s
		w.head = (w.head + 1) % w.size
		w.total++
	}
}

// Snapshot writes the most recent w.size samples, oldest-to-newest, into out.
// len(out) must equal w.size; Snapshot performs no allocation.
func (w *RingWindow) Snapshot(out []float32) {
	// out[0] is the oldest sample, which currently sits at w.head (the next
	// slot to be overwritten).
	n := copy(out, w.buf[w.head:])
	copy(out[n:], w.buf[:w.head])
}

// Filled reports whether the window holds a full W samples of real history.
func (w *RingWindow) Filled() bool {
	return w.total >= uint64(w.size)
}

// Reset zeroes the window in place. Per spec section 5, reset_dsp_state()
// preserves the ring window (audio is continuous) — Core never calls this; it
// exists for tests and for a hard power-on reset.
func (w *RingWindow) Reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.head = 0
	w.total = 0
}
