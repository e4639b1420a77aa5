// config.go - tunable constants, YAML persistence and hot-reload (spec Design Note #9)

package beatcore

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config holds every tuned threshold named in spec sections 4 and 9 as a typed
// field instead of a compile-time constant, so it can be retuned without
// re-architecture. Fields are grouped by the component that consumes them.
type Config struct {
	// CaptureConditioner (spec 4.1)
	Capture struct {
		ShiftBits     uint   `yaml:"shift_bits"`
		DCBias        int32  `yaml:"dc_bias"`
		ResidualDC    int32  `yaml:"residual_dc"`
		Gain          float32 `yaml:"gain"`
		ClipThreshold int32  `yaml:"clip_threshold"`
		ClipWarnCount uint32 `yaml:"clip_warn_count"`
		SilentHops    int    `yaml:"silent_hops"`
	} `yaml:"capture"`

	// RingWindow (spec 4.2)
	Window struct {
		Size int `yaml:"size"` // W
	} `yaml:"window"`

	// GoertzelBank (spec 4.3)
	Spectrum struct {
		Bins       int     `yaml:"bins"`        // K
		RootHz     float32 `yaml:"root_hz"`      // A2 = 110Hz
		AutoRangeFloor float32 `yaml:"auto_range_floor"`
		AutoRangeTauSeconds float32 `yaml:"auto_range_tau_seconds"`
	} `yaml:"spectrum"`

	// NoveltyDetector (spec 4.4)
	Novelty struct {
		HistoryLen       int     `yaml:"history_len"` // H_nov
		SilenceWindowSeconds float32 `yaml:"silence_window_seconds"`
		SilenceEpsilon   float32 `yaml:"silence_epsilon"`
		SilenceDecay     float32 `yaml:"silence_decay"`
		MeanTauSeconds   float32 `yaml:"mean_tau_seconds"`
		VarTauSeconds    float32 `yaml:"var_tau_seconds"`
		ZClamp           float32 `yaml:"z_clamp"`
	} `yaml:"novelty"`

	// TempoResonatorBank (spec 4.5)
	Tempo struct {
		Bins          int     `yaml:"bins"` // B
		MinBPM        float32 `yaml:"min_bpm"`
		MaxBPM        float32 `yaml:"max_bpm"`
		SmoothingAlphaMin float32 `yaml:"smoothing_alpha_min"`
		SmoothingAlphaMax float32 `yaml:"smoothing_alpha_max"`
		BeatShift     float32 `yaml:"beat_shift"` // beta, fraction of a beat
		TopK          int     `yaml:"top_k"`
		ScanBinsPerHop int    `yaml:"scan_bins_per_hop"`
	} `yaml:"tempo"`

	// TactusResolver (spec 4.6)
	Tactus struct {
		PriorCenterBPM     float32 `yaml:"prior_center_bpm"`
		PriorSigmaBPM      float32 `yaml:"prior_sigma_bpm"`
		OctaveWeight       float32 `yaml:"octave_weight"`
		DensityWeight      float32 `yaml:"density_weight"`
		StabilityBonus     float32 `yaml:"stability_bonus"`
		StabilityBandBPM   float32 `yaml:"stability_band_bpm"`
		DensityDecay       float32 `yaml:"density_decay"`
		DensityKernelWidth float32 `yaml:"density_kernel_width_bpm"`
		ConsensusBandBPM   float32 `yaml:"consensus_band_bpm"`
		RunnerUpBandBPM    float32 `yaml:"runner_up_band_bpm"`
		MinConfidence      float32 `yaml:"min_confidence"`
		MinScore           float32 `yaml:"min_score"`
		PendingChallengerRatio float32 `yaml:"pending_challenger_ratio"`
		PendingChallengerBPM   float32 `yaml:"pending_challenger_bpm"`
		PendingChallengerHops  int     `yaml:"pending_challenger_hops"`
		PendingVerifyMs        uint32  `yaml:"pending_verify_ms"`
		VerifiedTrackBandBPM   float32 `yaml:"verified_track_band_bpm"`
		VerifiedTrackAlpha     float32 `yaml:"verified_track_alpha"`
		VerifiedChallengerRatio float32 `yaml:"verified_challenger_ratio"`
		VerifiedChallengerHops  int     `yaml:"verified_challenger_hops"`
		OctaveOverrideMaxBPM    float32 `yaml:"octave_override_max_bpm"`
		OctaveOverrideMinScoreRatio float32 `yaml:"octave_override_min_score_ratio"`
		OctaveOverridePriorRatio    float32 `yaml:"octave_override_prior_ratio"`
		FailureTimeoutSeconds   float32 `yaml:"failure_timeout_seconds"`
	} `yaml:"tactus"`

	// BeatClock (spec 4.7)
	Clock struct {
		BigChangeThresholdBPM float32 `yaml:"big_change_threshold_bpm"`
		Kp                    float32 `yaml:"kp"`
		PhaseCorrectionClamp  float32 `yaml:"phase_correction_clamp"`
		FreqEMAAlpha          float32 `yaml:"freq_ema_alpha"`
		Kf                    float32 `yaml:"kf"`
		FreqCorrectionClampBPM float32 `yaml:"freq_correction_clamp_bpm"`
		TickDebounceFraction  float32 `yaml:"tick_debounce_fraction"`
		BarLengthBeats        int     `yaml:"bar_length_beats"`
	} `yaml:"clock"`

	// Calibration, the one persisted datum per spec section 6.
	Calibration struct {
		DCBias     float32 `yaml:"dc_bias"`
		Calibrated bool    `yaml:"calibrated"`
	} `yaml:"calibration"`

	// Core holds cross-cutting tunables for the aggregate pipeline (spec
	// section 5's per-hop deadline).
	Core struct {
		HopDeadlineMs float32 `yaml:"hop_deadline_ms"`
	} `yaml:"core"`
}

// DefaultConfig returns a Config populated with every literal default named in
// spec.md sections 4 and 8.
func DefaultConfig() *Config {
	c := &Config{}

	c.Capture.ShiftBits = 0
	c.Capture.DCBias = 7000
	c.Capture.ResidualDC = 360
	c.Capture.Gain = 4
	c.Capture.ClipThreshold = 32000
	c.Capture.ClipWarnCount = 8
	c.Capture.SilentHops = 5

	c.Window.Size = 512

	c.Spectrum.Bins = 64
	c.Spectrum.RootHz = 110 // A2
	c.Spectrum.AutoRangeFloor = 0.01
	c.Spectrum.AutoRangeTauSeconds = 1.0

	c.Novelty.HistoryLen = 800 // >= 500, >= 8s at 100Hz
	c.Novelty.SilenceWindowSeconds = 2.5
	c.Novelty.SilenceEpsilon = 1e-4
	c.Novelty.SilenceDecay = 0.9
	c.Novelty.MeanTauSeconds = 2.0
	c.Novelty.VarTauSeconds = 2.0
	c.Novelty.ZClamp = 4.0

	c.Tempo.Bins = 121
	c.Tempo.MinBPM = 48
	c.Tempo.MaxBPM = 180
	c.Tempo.SmoothingAlphaMin = 0.85
	c.Tempo.SmoothingAlphaMax = 0.95
	c.Tempo.BeatShift = 0.12
	c.Tempo.TopK = 12
	c.Tempo.ScanBinsPerHop = 5

	c.Tactus.PriorCenterBPM = 120
	c.Tactus.PriorSigmaBPM = 40
	c.Tactus.OctaveWeight = 0.4
	c.Tactus.DensityWeight = 0.8
	c.Tactus.StabilityBonus = 0.12
	c.Tactus.StabilityBandBPM = 2
	c.Tactus.DensityDecay = 0.97
	c.Tactus.DensityKernelWidth = 3
	c.Tactus.ConsensusBandBPM = 3
	c.Tactus.RunnerUpBandBPM = 6
	c.Tactus.MinConfidence = 0.15
	c.Tactus.MinScore = 0.2
	c.Tactus.PendingChallengerRatio = 1.10
	c.Tactus.PendingChallengerBPM = 5
	c.Tactus.PendingChallengerHops = 15
	c.Tactus.PendingVerifyMs = 2500
	c.Tactus.VerifiedTrackBandBPM = 2
	c.Tactus.VerifiedTrackAlpha = 0.01
	c.Tactus.VerifiedChallengerRatio = 1.15
	c.Tactus.VerifiedChallengerHops = 8
	c.Tactus.OctaveOverrideMaxBPM = 80
	c.Tactus.OctaveOverrideMinScoreRatio = 0.3
	c.Tactus.OctaveOverridePriorRatio = 2.0
	c.Tactus.FailureTimeoutSeconds = 3.0

	c.Clock.BigChangeThresholdBPM = 5
	c.Clock.Kp = 0.08
	c.Clock.PhaseCorrectionClamp = 0.15
	c.Clock.FreqEMAAlpha = 0.1
	c.Clock.Kf = 0.002
	c.Clock.FreqCorrectionClampBPM = 2
	c.Clock.TickDebounceFraction = 0.6
	c.Clock.BarLengthBeats = 4

	c.Core.HopDeadlineMs = 14

	return c
}

// LoadConfig reads a YAML config file, falling back to DefaultConfig for any
// field the file omits (the zero-value struct is merged over the defaults by
// decoding into a copy of the defaults).
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("beatcore: read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("beatcore: parse config %q: %w", path, err)
	}
	return c, nil
}

// Save writes c to path as YAML, used to persist DC calibration (spec section 6).
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("beatcore: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("beatcore: write config %q: %w", path, err)
	}
	return nil
}

// ConfigWatcher hot-reloads a Config from disk and invokes onReload with each
// new value. Core.Reconfigure, the demo harness's callback, rebuilds every
// pipeline component from the new value, so a reload restarts tempo lock and
// beat phase; only the calibrated DC bias is carried across.
type ConfigWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Config)
	done     chan struct{}
}

// WatchConfig starts watching path for writes and calls onReload on each one
// with a freshly loaded Config. Call Close to stop watching.
func WatchConfig(path string, onReload func(*Config)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("beatcore: new config watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("beatcore: watch config %q: %w", path, err)
	}

	cw := &ConfigWatcher{watcher: w, path: path, onReload: onReload, done: make(chan struct{})}
	go cw.loop()
	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				continue
			}
			cw.mu.Lock()
			cb := cw.onReload
			cw.mu.Unlock()
			if cb != nil {
				cb(cfg)
			}
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		case <-cw.done:
			return
		}
	}
}

// Close stops the watcher goroutine.
func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}
