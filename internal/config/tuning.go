package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the score follower.
// Every field is optional: the Get* accessors fall back to the values the
// device firmware ships with.
type TuningConfig struct {
	// Feature extraction
	WindowSize *int     `json:"window_size,omitempty"`
	HopSize    *int     `json:"hop_size,omitempty"`
	SampleRate *int     `json:"sample_rate,omitempty"`
	NoiseFloor *float64 `json:"noise_floor,omitempty"`
	MinBin     *int     `json:"min_bin,omitempty"`

	// Alignment
	StartThreshold *float64 `json:"start_threshold,omitempty"`
	BandRadius     *int     `json:"band_radius,omitempty"`
	PenaltyWait    *float64 `json:"penalty_wait,omitempty"`
	PenaltyStep    *float64 `json:"penalty_step,omitempty"`
	PenaltySkip    *float64 `json:"penalty_skip,omitempty"`
	PageTurnOffset *int     `json:"page_turn_offset,omitempty"`
	FinishMargin   *int     `json:"finish_margin,omitempty"`

	// Optional behaviour
	SmoothingWindow       *int     `json:"smoothing_window,omitempty"`
	RecoveryEnabled       *bool    `json:"recovery_enabled,omitempty"`
	RecoveryLostFrames    *int     `json:"recovery_lost_frames,omitempty"`
	RecoveryHistory       *int     `json:"recovery_history,omitempty"`
	RecoveryCostThreshold *float64 `json:"recovery_cost_threshold,omitempty"`

	// Musical position estimate
	BPM             *float64 `json:"bpm,omitempty"`
	BeatsPerMeasure *int     `json:"beats_per_measure,omitempty"`

	// Relay link and telemetry
	SerialBaud        *int    `json:"serial_baud,omitempty"`
	TelemetryInterval *string `json:"telemetry_interval,omitempty"` // duration string like "250ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		WindowSize:            ptrInt(empty.GetWindowSize()),
		HopSize:               ptrInt(empty.GetHopSize()),
		SampleRate:            ptrInt(empty.GetSampleRate()),
		NoiseFloor:            ptrFloat64(empty.GetNoiseFloor()),
		MinBin:                ptrInt(empty.GetMinBin()),
		StartThreshold:        ptrFloat64(empty.GetStartThreshold()),
		BandRadius:            ptrInt(empty.GetBandRadius()),
		PenaltyWait:           ptrFloat64(empty.GetPenaltyWait()),
		PenaltyStep:           ptrFloat64(empty.GetPenaltyStep()),
		PenaltySkip:           ptrFloat64(empty.GetPenaltySkip()),
		PageTurnOffset:        ptrInt(empty.GetPageTurnOffset()),
		FinishMargin:          ptrInt(empty.GetFinishMargin()),
		SmoothingWindow:       ptrInt(empty.GetSmoothingWindow()),
		RecoveryEnabled:       ptrBool(empty.GetRecoveryEnabled()),
		RecoveryLostFrames:    ptrInt(empty.GetRecoveryLostFrames()),
		RecoveryHistory:       ptrInt(empty.GetRecoveryHistory()),
		RecoveryCostThreshold: ptrFloat64(empty.GetRecoveryCostThreshold()),
		BPM:                   ptrFloat64(empty.GetBPM()),
		BeatsPerMeasure:       ptrInt(empty.GetBeatsPerMeasure()),
		SerialBaud:            ptrInt(empty.GetSerialBaud()),
		TelemetryInterval:     ptrString("250ms"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/<tool>/ run dirs
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.WindowSize != nil && (!isPowerOfTwo(*c.WindowSize) || *c.WindowSize < 16) {
		return fmt.Errorf("window_size must be a power of two >= 16, got %d", *c.WindowSize)
	}

	if c.HopSize != nil {
		if *c.HopSize <= 0 || *c.HopSize > c.GetWindowSize() {
			return fmt.Errorf("hop_size must be in (0, %d], got %d", c.GetWindowSize(), *c.HopSize)
		}
	}

	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", *c.SampleRate)
	}

	if c.NoiseFloor != nil && *c.NoiseFloor < 0 {
		return fmt.Errorf("noise_floor must be non-negative, got %f", *c.NoiseFloor)
	}

	if c.MinBin != nil && (*c.MinBin < 1 || *c.MinBin >= c.GetWindowSize()/2) {
		return fmt.Errorf("min_bin must be in [1, %d), got %d", c.GetWindowSize()/2, *c.MinBin)
	}

	if c.StartThreshold != nil && *c.StartThreshold < 0 {
		return fmt.Errorf("start_threshold must be non-negative, got %f", *c.StartThreshold)
	}

	for name, v := range map[string]*float64{
		"penalty_wait": c.PenaltyWait,
		"penalty_step": c.PenaltyStep,
		"penalty_skip": c.PenaltySkip,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	for name, v := range map[string]*int{
		"band_radius":      c.BandRadius,
		"page_turn_offset": c.PageTurnOffset,
		"finish_margin":    c.FinishMargin,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}

	if c.RecoveryLostFrames != nil && *c.RecoveryLostFrames < 1 {
		return fmt.Errorf("recovery_lost_frames must be at least 1, got %d", *c.RecoveryLostFrames)
	}

	if c.RecoveryHistory != nil && *c.RecoveryHistory < 1 {
		return fmt.Errorf("recovery_history must be at least 1, got %d", *c.RecoveryHistory)
	}

	if c.RecoveryCostThreshold != nil && (*c.RecoveryCostThreshold <= 0 || *c.RecoveryCostThreshold > 1) {
		return fmt.Errorf("recovery_cost_threshold must be in (0, 1], got %f", *c.RecoveryCostThreshold)
	}

	if c.BPM != nil && *c.BPM <= 0 {
		return fmt.Errorf("bpm must be positive, got %f", *c.BPM)
	}

	if c.BeatsPerMeasure != nil && *c.BeatsPerMeasure <= 0 {
		return fmt.Errorf("beats_per_measure must be positive, got %d", *c.BeatsPerMeasure)
	}

	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}

	if c.TelemetryInterval != nil && *c.TelemetryInterval != "" {
		if _, err := time.ParseDuration(*c.TelemetryInterval); err != nil {
			return fmt.Errorf("invalid telemetry_interval '%s': %w", *c.TelemetryInterval, err)
		}
	}

	return nil
}

// GetWindowSize returns the analysis window length in samples.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 4096
	}
	return *c.WindowSize
}

// GetHopSize returns the hop between successive windows. Defaults to the
// window size, which means windows do not overlap.
func (c *TuningConfig) GetHopSize() int {
	if c.HopSize == nil {
		return c.GetWindowSize()
	}
	return *c.HopSize
}

// GetSampleRate returns the capture sample rate in Hz.
func (c *TuningConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return 44100
	}
	return *c.SampleRate
}

// GetNoiseFloor returns the per-bin magnitude gate.
func (c *TuningConfig) GetNoiseFloor() float64 {
	if c.NoiseFloor == nil {
		return 10.0
	}
	return *c.NoiseFloor
}

// GetMinBin returns the first transform bin mapped to a pitch class.
func (c *TuningConfig) GetMinBin() int {
	if c.MinBin == nil {
		return 2
	}
	return *c.MinBin
}

// GetStartThreshold returns the loudness level that starts tracking.
func (c *TuningConfig) GetStartThreshold() float64 {
	if c.StartThreshold == nil {
		return 1500
	}
	return *c.StartThreshold
}

// GetBandRadius returns the half-width of the evaluated reference band.
func (c *TuningConfig) GetBandRadius() int {
	if c.BandRadius == nil {
		return 100
	}
	return *c.BandRadius
}

func (c *TuningConfig) GetPenaltyWait() float64 {
	if c.PenaltyWait == nil {
		return 2.0
	}
	return *c.PenaltyWait
}

func (c *TuningConfig) GetPenaltyStep() float64 {
	if c.PenaltyStep == nil {
		return 0.0
	}
	return *c.PenaltyStep
}

func (c *TuningConfig) GetPenaltySkip() float64 {
	if c.PenaltySkip == nil {
		return 0.8
	}
	return *c.PenaltySkip
}

// GetPageTurnOffset returns how many reference frames before a page
// boundary the turn fires.
func (c *TuningConfig) GetPageTurnOffset() int {
	if c.PageTurnOffset == nil {
		return 10
	}
	return *c.PageTurnOffset
}

// GetFinishMargin returns the distance from the end of the reference at
// which the piece counts as finished.
func (c *TuningConfig) GetFinishMargin() int {
	if c.FinishMargin == nil {
		return 5
	}
	return *c.FinishMargin
}

// GetSmoothingWindow returns the moving-average length applied to live
// chroma frames. 1 disables smoothing.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 1
	}
	return *c.SmoothingWindow
}

// GetRecoveryEnabled reports whether the tracker may re-acquire its
// position after sustained path loss.
func (c *TuningConfig) GetRecoveryEnabled() bool {
	if c.RecoveryEnabled == nil {
		return false
	}
	return *c.RecoveryEnabled
}

func (c *TuningConfig) GetRecoveryLostFrames() int {
	if c.RecoveryLostFrames == nil {
		return 8
	}
	return *c.RecoveryLostFrames
}

func (c *TuningConfig) GetRecoveryHistory() int {
	if c.RecoveryHistory == nil {
		return 64
	}
	return *c.RecoveryHistory
}

// GetRecoveryCostThreshold returns the mean per-frame alignment cost above
// which the tracker considers itself derailed.
func (c *TuningConfig) GetRecoveryCostThreshold() float64 {
	if c.RecoveryCostThreshold == nil {
		return 0.5
	}
	return *c.RecoveryCostThreshold
}

func (c *TuningConfig) GetBPM() float64 {
	if c.BPM == nil {
		return 40
	}
	return *c.BPM
}

func (c *TuningConfig) GetBeatsPerMeasure() int {
	if c.BeatsPerMeasure == nil {
		return 4
	}
	return *c.BeatsPerMeasure
}

// GetSerialBaud returns the relay link baud rate.
func (c *TuningConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetTelemetryInterval parses and returns the TelemetryInterval as a time.Duration.
func (c *TuningConfig) GetTelemetryInterval() time.Duration {
	if c.TelemetryInterval == nil || *c.TelemetryInterval == "" {
		return 250 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.TelemetryInterval)
	if err != nil {
		return 250 * time.Millisecond // default on parse error
	}
	return d
}

// FrameDuration returns the wall-clock time represented by one hop, which
// is the processing budget for a single frame.
func (c *TuningConfig) FrameDuration() time.Duration {
	return time.Duration(float64(c.GetHopSize()) / float64(c.GetSampleRate()) * float64(time.Second))
}
