// diagnostics.go - wire encoders for ControlBusFrame and the diagnostic stream (spec 6)

package beatcore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// wireFrame mirrors spec section 6's JSON example field-for-field (camelCase
// naming, nested signalQuality object), extended to carry every
// ControlBusFrame/SignalQuality field so the wire format round-trips
// byte-identically (spec section 8, "Round-trip / idempotence").
type wireFrame struct {
	HopSeq        uint32            `json:"hopSeq"`
	TMs           uint32            `json:"tMs"`
	Novelty       float32           `json:"novelty"`
	BPM           float32           `json:"bpm"`
	BeatPhase     float32           `json:"beatPhase"`
	BeatTick      bool              `json:"beatTick"`
	DownbeatTick  bool              `json:"downbeatTick"`
	Confidence    float32           `json:"confidence"`
	Locked        bool              `json:"locked"`
	SignalQuality wireSignalQuality `json:"signalQuality"`
	Spectrum      []float32         `json:"spectrum"`
}

type wireSignalQuality struct {
	RMS               float32      `json:"rms"`
	DC                float32      `json:"dc"`
	Peak              float32      `json:"peak"`
	Clip              uint32       `json:"clip"`
	ZeroCount         uint32       `json:"zeroCount"`
	SNR               float32      `json:"snr"`
	Clipping          bool         `json:"clipping"`
	MicSilent         bool         `json:"micSilent"`
	CalibrationMissed bool         `json:"calibrationMissed"`
	Counters          wireCounters `json:"counters"`
}

type wireCounters struct {
	ShortHops      uint32 `json:"shortHops"`
	ClipWarnings   uint32 `json:"clipWarnings"`
	DeadlineMisses uint32 `json:"deadlineMisses"`
	MicSilentHops  uint32 `json:"micSilentHops"`
}

// EncodeJSON renders f as the JSON wire format documented in spec section 6.
func EncodeJSON(f *ControlBusFrame) ([]byte, error) {
	w := wireFrame{
		HopSeq:       f.HopSeq,
		TMs:          f.TMs,
		Novelty:      f.Novelty,
		BPM:          f.BPM,
		BeatPhase:    f.BeatPhase01,
		BeatTick:     f.BeatTick,
		DownbeatTick: f.DownbeatTick,
		Confidence:   f.Confidence,
		Locked:       f.Locked,
		SignalQuality: wireSignalQuality{
			RMS:               f.SignalQuality.RMS,
			DC:                f.SignalQuality.DCOffset,
			Peak:              f.SignalQuality.Peak,
			Clip:              f.SignalQuality.ClipCount,
			ZeroCount:         f.SignalQuality.ZeroCount,
			SNR:               f.SignalQuality.SNREstimate,
			Clipping:          f.SignalQuality.Clipping,
			MicSilent:         f.SignalQuality.MicSilent,
			CalibrationMissed: f.SignalQuality.CalibrationMissed,
			Counters: wireCounters{
				ShortHops:      f.SignalQuality.Counters.ShortHops,
				ClipWarnings:   f.SignalQuality.Counters.ClipWarnings,
				DeadlineMisses: f.SignalQuality.Counters.DeadlineMisses,
				MicSilentHops:  f.SignalQuality.Counters.MicSilentHops,
			},
		},
		Spectrum: f.Spectrum,
	}
	return json.Marshal(w)
}

// DecodeJSON parses the JSON wire format back into a ControlBusFrame.
// Round-tripping EncodeJSON/DecodeJSON preserves every field (spec section 8,
// "Round-trip / idempotence").
func DecodeJSON(data []byte) (*ControlBusFrame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("beatcore: decode json frame: %w", err)
	}
	return &ControlBusFrame{
		HopSeq:       w.HopSeq,
		TMs:          w.TMs,
		Novelty:      w.Novelty,
		BPM:          w.BPM,
		BeatPhase01:  w.BeatPhase,
		BeatTick:     w.BeatTick,
		DownbeatTick: w.DownbeatTick,
		Confidence:   w.Confidence,
		Locked:       w.Locked,
		SignalQuality: SignalQuality{
			RMS:               w.SignalQuality.RMS,
			DCOffset:          w.SignalQuality.DC,
			Peak:              w.SignalQuality.Peak,
			ClipCount:         w.SignalQuality.Clip,
			ZeroCount:         w.SignalQuality.ZeroCount,
			SNREstimate:       w.SignalQuality.SNR,
			Clipping:          w.SignalQuality.Clipping,
			MicSilent:         w.SignalQuality.MicSilent,
			CalibrationMissed: w.SignalQuality.CalibrationMissed,
			Counters: Counters{
				ShortHops:      w.SignalQuality.Counters.ShortHops,
				ClipWarnings:   w.SignalQuality.Counters.ClipWarnings,
				DeadlineMisses: w.SignalQuality.Counters.DeadlineMisses,
				MicSilentHops:  w.SignalQuality.Counters.MicSilentHops,
			},
		},
		Spectrum: append([]float32(nil), w.Spectrum...),
	}, nil
}

// binaryMagic identifies the binary wire format's fixed header (spec section
// 6: "[u32 magic][u32 hopSeq][f32 bpm][f32 phase][u8 flags][...]").
const binaryMagic uint32 = 0xBEA7C0DE

const (
	flagBeatTick          = 1 << 0
	flagDownbeatTick      = 1 << 1
	flagLocked            = 1 << 2
	flagClipping          = 1 << 3
	flagMicSilent         = 1 << 4
	flagCalibrationMissed = 1 << 5
)

// binaryFixedLen is the byte length of every field before the variable-length
// spectrum tail.
const binaryFixedLen = 4 + 4 + 4 + 4 + 4 + 1 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4

// EncodeBinary renders f as the little-endian binary wire format used by the
// UDP/WebSocket streamer collaborators (spec section 6), extended to carry
// every ControlBusFrame/SignalQuality field so the format round-trips
// byte-identically (spec section 8). Layout:
//
//	u32 magic, u32 hopSeq, f32 bpm, f32 phase, u8 flags, f32 novelty,
//	f32 confidence, u32 tMs, f32 rms, f32 dc, f32 peak, u32 clip,
//	u32 zeroCount, f32 snr, u32 shortHops, u32 clipWarnings,
//	u32 deadlineMisses, u32 micSilentHops,
//	u32 spectrumLen, [spectrumLen]f32 spectrum
func EncodeBinary(f *ControlBusFrame) []byte {
	buf := make([]byte, binaryFixedLen+4*len(f.Spectrum))
	off := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[off:], v); off += 4 }
	putF32 := func(v float32) { binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v)); off += 4 }

	putU32(binaryMagic)
	putU32(f.HopSeq)
	putF32(f.BPM)
	putF32(f.BeatPhase01)

	var flags byte
	if f.BeatTick {
		flags |= flagBeatTick
	}
	if f.DownbeatTick {
		flags |= flagDownbeatTick
	}
	if f.Locked {
		flags |= flagLocked
	}
	if f.SignalQuality.Clipping {
		flags |= flagClipping
	}
	if f.SignalQuality.MicSilent {
		flags |= flagMicSilent
	}
	if f.SignalQuality.CalibrationMissed {
		flags |= flagCalibrationMissed
	}
	buf[off] = flags
	off++

	putF32(f.Novelty)
	putF32(f.Confidence)
	putU32(f.TMs)
	putF32(f.SignalQuality.RMS)
	putF32(f.SignalQuality.DCOffset)
	putF32(f.SignalQuality.Peak)
	putU32(f.SignalQuality.ClipCount)
	putU32(f.SignalQuality.ZeroCount)
	putF32(f.SignalQuality.SNREstimate)
	putU32(f.SignalQuality.Counters.ShortHops)
	putU32(f.SignalQuality.Counters.ClipWarnings)
	putU32(f.SignalQuality.Counters.DeadlineMisses)
	putU32(f.SignalQuality.Counters.MicSilentHops)
	putU32(uint32(len(f.Spectrum)))
	for _, v := range f.Spectrum {
		putF32(v)
	}
	return buf
}

// DecodeBinary parses the binary wire format produced by EncodeBinary.
func DecodeBinary(buf []byte) (*ControlBusFrame, error) {
	if len(buf) < binaryFixedLen {
		return nil, fmt.Errorf("beatcore: binary frame too short: %d bytes", len(buf))
	}
	off := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[off:]); off += 4; return v }
	getF32 := func() float32 { v := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])); off += 4; return v }

	magic := getU32()
	if magic != binaryMagic {
		return nil, fmt.Errorf("beatcore: bad binary frame magic: 0x%08X", magic)
	}

	f := &ControlBusFrame{}
	f.HopSeq = getU32()
	f.BPM = getF32()
	f.BeatPhase01 = getF32()

	flags := buf[off]
	off++
	f.BeatTick = flags&flagBeatTick != 0
	f.DownbeatTick = flags&flagDownbeatTick != 0
	f.Locked = flags&flagLocked != 0
	f.SignalQuality.Clipping = flags&flagClipping != 0
	f.SignalQuality.MicSilent = flags&flagMicSilent != 0
	f.SignalQuality.CalibrationMissed = flags&flagCalibrationMissed != 0

	f.Novelty = getF32()
	f.Confidence = getF32()
	f.TMs = getU32()
	f.SignalQuality.RMS = getF32()
	f.SignalQuality.DCOffset = getF32()
	f.SignalQuality.Peak = getF32()
	f.SignalQuality.ClipCount = getU32()
	f.SignalQuality.ZeroCount = getU32()
	f.SignalQuality.SNREstimate = getF32()
	f.SignalQuality.Counters.ShortHops = getU32()
	f.SignalQuality.Counters.ClipWarnings = getU32()
	f.SignalQuality.Counters.DeadlineMisses = getU32()
	f.SignalQuality.Counters.MicSilentHops = getU32()

	n := getU32()
	if uint64(off)+uint64(n)*4 > uint64(len(buf)) {
		return nil, fmt.Errorf("beatcore: binary frame spectrum length %d exceeds buffer", n)
	}
	f.Spectrum = make([]float32, n)
	for i := range f.Spectrum {
		f.Spectrum[i] = getF32()
	}
	return f, nil
}

// DiagnosticSample is the per-hop diagnostic record from spec section 6,
// transport-agnostic: a collaborator wires it to a serial console, a
// WebSocket, or both.
type DiagnosticSample struct {
	HopSeq     uint32
	DC         float32
	RMS        float32
	Peak       float32
	ClipCount  uint32
	ZeroCount  uint32
	SNR        float32
	NoveltyRaw float32
	NoveltyZ   float32
	Top3BPM    [3]float32
	Top3Mag    [3]float32
	LockState  string
	Confidence float32
	Phase01    float32
}

// EncodeDiagnosticJSON renders a DiagnosticSample as JSON.
func EncodeDiagnosticJSON(d *DiagnosticSample) ([]byte, error) {
	return json.Marshal(d)
}
