// types.go - shared data model for the beat-tracker core (spec section 3)

package beatcore

// AudioHop is one block of raw samples delivered by the capture collaborator.
// It is owned by CaptureConditioner for the duration of a single ProcessHop call;
// no later stage retains a reference to the backing slice.
type AudioHop struct {
	Samples    []int32 // native-format samples, sign-extended to int32
	SampleRate int     // Fs, Hz
}

// ErrorKind tags the recoverable error taxonomy from spec section 7.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorShortHop
	ErrorMicSilent
	ErrorClipping
	ErrorDeadlineMiss
	ErrorCalibrationMissing
)

// Counters accumulates the recoverable error taxonomy across the session so a
// diagnostic consumer can chart error rates (SPEC_FULL supplement).
type Counters struct {
	ShortHops      uint32
	ClipWarnings   uint32
	DeadlineMisses uint32
	MicSilentHops  uint32
}

// SignalQuality holds the per-hop scalars from spec section 3.
type SignalQuality struct {
	DCOffset          float32
	RMS               float32
	Peak              float32
	ClipCount         uint32
	ZeroCount         uint32
	SNREstimate       float32
	Clipping          bool
	MicSilent         bool
	CalibrationMissed bool
	Counters          Counters
}

// SpectralFrame is the K-bin semitone-spaced magnitude vector produced once per hop.
type SpectralFrame struct {
	Magnitudes []float32 // length K, each in [0, 1] after auto-ranging
}

// LockState is the tactus resolver's confidence ladder (spec section 4.6).
type LockState int

const (
	LockUnlocked LockState = iota
	LockPending
	LockVerified
)

func (s LockState) String() string {
	switch s {
	case LockUnlocked:
		return "UNLOCKED"
	case LockPending:
		return "PENDING"
	case LockVerified:
		return "VERIFIED"
	default:
		return "UNKNOWN"
	}
}

// TempoBin is a configuration-plus-state record for a single tempo resonator
// (spec section 3). The configuration fields are set once at init and never
// change thereafter; the state fields are updated once per hop.
type TempoBin struct {
	// Configuration (invariant after init).
	BPM        float32
	Coeff      float32 // 2*cos(2*pi*bpm/60/Fnov)
	Sine       float32
	Cosine     float32
	BlockSize  int
	WindowStep int
	Window     []float32 // gaussian analysis window, length BlockSize, precomputed at construction

	// Per-frame state.
	Magnitude       float32
	MagnitudeSmooth float32
	Phase           float32
	PhaseInverted   bool

	// Goertzel recurrence registers. TempoResonatorBank.scanBin keeps its
	// recurrence in local variables and does not read or write these.
	q1, q2 float32
}

// ResonatorCandidate is one top-K tempo candidate exported per hop (spec section 3).
type ResonatorCandidate struct {
	BPM          float32
	MagnitudeNrm float32
	RawMagnitude float32
	Phase        float32
}

// TactusState is the tactus resolver's published state (spec section 3).
type TactusState struct {
	LockState       LockState
	LockedBPM       float32
	LockedScore     float32
	PendingStartMs  uint32
	ChallengerBPM   float32
	ChallengerFrame int
	Density         [121]float32 // BPM-indexed (48..168 inclusive), triangular KDE memory
}

// BeatClockState is the PLL's published state (spec section 3). BeatClock is
// its only writer.
type BeatClockState struct {
	PhaseRad     float32
	BPMEff       float32
	PhaseError   float32
	FreqErrorEMA float32
	LastTickMs   uint32
	Locked       bool
}

// ControlBusFrame is the immutable, per-hop aggregate published to the visual
// consumer (spec section 3/4.8).
type ControlBusFrame struct {
	HopSeq        uint32
	TMs           uint32
	Spectrum      []float32 // copy of the K-bin spectrum, owned by this frame
	Novelty       float32
	BPM           float32
	BeatPhase01   float32
	BeatTick      bool
	DownbeatTick  bool
	Confidence    float32
	Locked        bool
	SignalQuality SignalQuality
}

// Clone returns a deep copy of f, including its own Spectrum slice.
// ControlBusPublisher.Load returns the published pointer itself, not a clone;
// consumers that want an explicit ownership boundary call Clone on it.
func (f *ControlBusFrame) Clone() *ControlBusFrame {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Spectrum = append([]float32(nil), f.Spectrum...)
	return &cp
}
