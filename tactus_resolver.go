// tactus_resolver.go - tempo hypothesis resolution and lock state machine (spec 4.6)

package beatcore

import "math"

// magnitudeSource is the subset of TempoResonatorBank the resolver needs,
// kept as an interface so unit tests can supply a fake bank.
type magnitudeSource interface {
	MagnitudeAt(bpm float32) float32
}

// TactusResolver collapses the resonator bank's candidate set into a single
// (locked_bpm, confidence, phase_hint) and owns the UNLOCKED->PENDING->VERIFIED
// state machine with hysteresis (spec 4.6). density is the only field it
// writes that other components read; lock_state transitions are the only
// state transitions it publishes.
type TactusResolver struct {
	cfg   *Config
	state TactusState

	densityMin int // BPM at density[0], i.e. density covers [densityMin, densityMin+120]

	failingSinceMs  int64
	failingActive   bool
	hasFailingStart bool

	scratch []candidateScore // preallocated scored-candidates scratch, sized to cfg.Tempo.TopK
}

// NewTactusResolver builds a resolver using cfg.Tactus, initially UNLOCKED.
func NewTactusResolver(cfg *Config) *TactusResolver {
	return &TactusResolver{
		cfg:        cfg,
		densityMin: 48,
		scratch:    make([]candidateScore, cfg.Tempo.TopK),
	}
}

// ResolverOutput is what the resolver publishes to BeatClock and the control
// bus each hop.
type ResolverOutput struct {
	LockedBPM  float32
	Confidence float32
	PhaseHint  float32
	Locked     bool
	LockState  LockState
}

func (r *TactusResolver) prior(bpm float32) float32 {
	d := bpm - r.cfg.Tactus.PriorCenterBPM
	sigma := r.cfg.Tactus.PriorSigmaBPM
	return float32(math.Exp(-float64(d*d) / (2 * float64(sigma) * float64(sigma))))
}

func (r *TactusResolver) densityIndex(bpm float32) int {
	idx := int(bpm+0.5) - r.densityMin
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.state.Density) {
		idx = len(r.state.Density) - 1
	}
	return idx
}

func (r *TactusResolver) densityNormalized(bpm float32) float32 {
	var max float32 = 1e-6
	for _, d := range r.state.Density {
		if d > max {
			max = d
		}
	}
	return r.state.Density[r.densityIndex(bpm)] / max
}

func (r *TactusResolver) updateDensity(winnerBPM float32) {
	width := r.cfg.Tactus.DensityKernelWidth
	for i := range r.state.Density {
		r.state.Density[i] *= r.cfg.Tactus.DensityDecay
	}
	bpmAt := func(i int) float32 { return float32(r.densityMin + i) }
	for i := range r.state.Density {
		d := absf32(bpmAt(i) - winnerBPM)
		if d <= width {
			r.state.Density[i] += 1 - d/width
		}
	}
}

func (r *TactusResolver) score(bpm, mag float32, bank magnitudeSource) float32 {
	s := mag * r.prior(bpm)

	half := bpm / 2
	double := bpm * 2
	s += r.cfg.Tactus.OctaveWeight * bank.MagnitudeAt(half) * r.prior(half)
	s += r.cfg.Tactus.OctaveWeight * bank.MagnitudeAt(double) * r.prior(double)

	s += r.cfg.Tactus.DensityWeight * r.densityNormalized(bpm)

	if r.state.LockState == LockVerified && absf32(bpm-r.state.LockedBPM) <= r.cfg.Tactus.StabilityBandBPM {
		s += r.cfg.Tactus.StabilityBonus
	}
	return s
}

// Process scores the top-K candidates, resolves the winning BPM, advances the
// lock state machine, and returns the published resolver output. nowMs is the
// core's monotonic hop clock in milliseconds.
func (r *TactusResolver) Process(candidates []ResonatorCandidate, bank magnitudeSource, nowMs int64) ResolverOutput {
	if len(candidates) == 0 {
		return r.publishFailure(nowMs)
	}

	// Steady state always calls with len(candidates) == cfg.Tempo.TopK, the
	// size r.scratch was preallocated to; growing here only happens if a
	// caller passes more candidates than that (spec 5: no allocation after
	// init on the steady-state path).
	if cap(r.scratch) < len(candidates) {
		r.scratch = make([]candidateScore, len(candidates))
	}
	all := r.scratch[:len(candidates)]
	var winner candidateScore
	winner.score = -1
	for i, c := range candidates {
		sc := r.score(c.BPM, c.MagnitudeNrm, bank)
		all[i] = candidateScore{c, sc}
		if sc > winner.score {
			winner = all[i]
		}
	}

	winnerBPM := winner.BPM
	winnerScore := winner.score

	// Octave override: guard against false half-time locks (spec 4.6).
	if winnerBPM < r.cfg.Tactus.OctaveOverrideMaxBPM {
		doubleBPM := winnerBPM * 2
		doubleMag := bank.MagnitudeAt(doubleBPM)
		doubleScore := doubleMag*r.prior(doubleBPM) + r.cfg.Tactus.DensityWeight*r.densityNormalized(doubleBPM)
		priorRatio := float32(0)
		if p := r.prior(winnerBPM); p > 1e-9 {
			priorRatio = r.prior(doubleBPM) / p
		}
		if doubleScore >= r.cfg.Tactus.OctaveOverrideMinScoreRatio*winnerScore && priorRatio >= r.cfg.Tactus.OctaveOverridePriorRatio {
			winnerBPM = doubleBPM
			winnerScore = doubleScore
		}
	}

	r.updateDensity(winnerBPM)

	// Grouped-consensus confidence.
	var groupScore, runner float32
	for _, a := range all {
		d := absf32(a.BPM - winnerBPM)
		if d <= r.cfg.Tactus.ConsensusBandBPM {
			groupScore += a.score
		} else if d >= r.cfg.Tactus.RunnerUpBandBPM && a.score > runner {
			runner = a.score
		}
	}
	var conf float32
	if runner < 1e-6 {
		conf = 1
	} else {
		conf = (groupScore - runner) / (groupScore + runner)
	}
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}

	if winnerScore < r.cfg.Tactus.MinScore {
		if !r.hasFailingStart {
			r.failingSinceMs = nowMs
			r.hasFailingStart = true
		}
		if float32(nowMs-r.failingSinceMs)/1000 >= r.cfg.Tactus.FailureTimeoutSeconds {
			return r.publishFailure(nowMs)
		}
	} else {
		r.failingActive = false
		r.hasFailingStart = false
	}

	r.advanceStateMachine(winnerBPM, winnerScore, all, nowMs)

	reportedConf := conf
	if reportedConf < r.cfg.Tactus.MinConfidence {
		reportedConf = r.cfg.Tactus.MinConfidence
	}

	phaseHint := float32(0)
	for _, a := range all {
		if a.BPM == winnerBPM {
			phaseHint = a.Phase
			break
		}
	}

	return ResolverOutput{
		LockedBPM:  r.state.LockedBPM,
		Confidence: reportedConf,
		PhaseHint:  phaseHint,
		Locked:     r.state.LockState == LockVerified,
		LockState:  r.state.LockState,
	}
}

type candidateScore struct {
	ResonatorCandidate
	score float32
}

func (r *TactusResolver) advanceStateMachine(winnerBPM, winnerScore float32, all []candidateScore, nowMs int64) {
	switch r.state.LockState {
	case LockUnlocked:
		if winnerScore >= r.cfg.Tactus.MinScore {
			r.state.LockState = LockPending
			r.state.LockedBPM = winnerBPM
			r.state.LockedScore = winnerScore
			r.state.PendingStartMs = uint32(nowMs)
			r.state.ChallengerBPM = 0
			r.state.ChallengerFrame = 0
		}

	case LockPending:
		challenger, ok := findChallenger(all, r.state.LockedBPM, r.cfg.Tactus.PendingChallengerBPM, r.cfg.Tactus.PendingChallengerRatio, r.state.LockedScore)
		if ok {
			if absf32(challenger.BPM-r.state.ChallengerBPM) < 1 {
				r.state.ChallengerFrame++
			} else {
				r.state.ChallengerBPM = challenger.BPM
				r.state.ChallengerFrame = 1
			}
			if r.state.ChallengerFrame >= r.cfg.Tactus.PendingChallengerHops {
				r.state.LockedBPM = challenger.BPM
				r.state.LockedScore = challenger.score
				r.state.PendingStartMs = uint32(nowMs)
				r.state.ChallengerBPM = 0
				r.state.ChallengerFrame = 0
			}
		} else {
			r.state.ChallengerFrame = 0
		}

		if uint32(nowMs)-r.state.PendingStartMs >= r.cfg.Tactus.PendingVerifyMs {
			r.state.LockState = LockVerified
		}

	case LockVerified:
		if absf32(winnerBPM-r.state.LockedBPM) <= r.cfg.Tactus.VerifiedTrackBandBPM {
			alpha := r.cfg.Tactus.VerifiedTrackAlpha
			r.state.LockedBPM = (1-alpha)*r.state.LockedBPM + alpha*winnerBPM
			r.state.LockedScore = winnerScore
		}

		challenger, ok := findChallenger(all, r.state.LockedBPM, r.cfg.Tactus.StabilityBandBPM, r.cfg.Tactus.VerifiedChallengerRatio, r.state.LockedScore)
		if ok {
			if absf32(challenger.BPM-r.state.ChallengerBPM) < 1 {
				r.state.ChallengerFrame++
			} else {
				r.state.ChallengerBPM = challenger.BPM
				r.state.ChallengerFrame = 1
			}
			if r.state.ChallengerFrame >= r.cfg.Tactus.VerifiedChallengerHops {
				r.state.LockedBPM = challenger.BPM
				r.state.LockedScore = challenger.score
				r.state.ChallengerBPM = 0
				r.state.ChallengerFrame = 0
			}
		} else {
			r.state.ChallengerFrame = 0
		}
	}
}

func findChallenger(all []candidateScore, lockedBPM, minDistance, minRatio, lockedScore float32) (candidateScore, bool) {
	var best candidateScore
	found := false
	for _, a := range all {
		if absf32(a.BPM-lockedBPM) < minDistance {
			continue
		}
		if a.score < minRatio*lockedScore {
			continue
		}
		if !found || a.score > best.score {
			best = candidateScore{a.ResonatorCandidate, a.score}
			found = true
		}
	}
	return best, found
}

// publishFailure implements spec 4.6's failure mode. Process calls it on
// every hop with no candidates at all, and on hops where no candidate has met
// MIN_SCORE for FailureTimeoutSeconds. It publishes MIN_CONFIDENCE and
// locked=false while BeatClock free-runs at the last good BPM, and returns the
// resolver to UNLOCKED once the failure has lasted FailureTimeoutSeconds.
func (r *TactusResolver) publishFailure(nowMs int64) ResolverOutput {
	if !r.hasFailingStart {
		r.failingSinceMs = nowMs
		r.hasFailingStart = true
	}
	r.failingActive = true

	elapsed := float32(nowMs-r.failingSinceMs) / 1000
	if elapsed >= r.cfg.Tactus.FailureTimeoutSeconds {
		r.state.LockState = LockUnlocked
	}

	return ResolverOutput{
		LockedBPM:  r.state.LockedBPM,
		Confidence: r.cfg.Tactus.MinConfidence,
		PhaseHint:  0,
		Locked:     false,
		LockState:  r.state.LockState,
	}
}

// State returns a copy of the resolver's published state, for diagnostics
// and tests.
func (r *TactusResolver) State() TactusState {
	return r.state
}

// Reset implements reset_dsp_state()'s effect on the resolver: clear
// density, locked state, and challenger bookkeeping; return to UNLOCKED
// (spec section 5, state-machine table's "any -> reset_dsp_state()" row).
func (r *TactusResolver) Reset() {
	r.state = TactusState{}
	r.failingActive = false
	r.hasFailingStart = false
}
