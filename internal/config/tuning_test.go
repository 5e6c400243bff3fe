package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.WindowSize == nil || *cfg.WindowSize != 4096 {
		t.Errorf("Expected WindowSize 4096, got %v", cfg.WindowSize)
	}
	if cfg.HopSize == nil || *cfg.HopSize != 4096 {
		t.Errorf("Expected HopSize 4096, got %v", cfg.HopSize)
	}
	if cfg.RecoveryEnabled == nil || *cfg.RecoveryEnabled != false {
		t.Errorf("Expected RecoveryEnabled false, got %v", cfg.RecoveryEnabled)
	}

	if cfg.GetPenaltyWait() != 2.0 {
		t.Errorf("GetPenaltyWait() = %f, want 2.0", cfg.GetPenaltyWait())
	}
	if cfg.GetPenaltyStep() != 0.0 {
		t.Errorf("GetPenaltyStep() = %f, want 0.0", cfg.GetPenaltyStep())
	}
	if cfg.GetPenaltySkip() != 0.8 {
		t.Errorf("GetPenaltySkip() = %f, want 0.8", cfg.GetPenaltySkip())
	}
	if cfg.GetBandRadius() != 100 {
		t.Errorf("GetBandRadius() = %d, want 100", cfg.GetBandRadius())
	}
	if cfg.GetStartThreshold() != 1500 {
		t.Errorf("GetStartThreshold() = %f, want 1500", cfg.GetStartThreshold())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultTuningConfig().Validate() = %v", err)
	}
}

func TestHopSizeFollowsWindowSize(t *testing.T) {
	cfg := &TuningConfig{WindowSize: ptrInt(1024)}
	if got := cfg.GetHopSize(); got != 1024 {
		t.Errorf("GetHopSize() = %d, want 1024 when only window_size is set", got)
	}
}

func TestFrameDuration(t *testing.T) {
	cfg := &TuningConfig{HopSize: ptrInt(4410), SampleRate: ptrInt(44100), WindowSize: ptrInt(8192)}
	if got := cfg.FrameDuration(); got != 100*time.Millisecond {
		t.Errorf("FrameDuration() = %v, want 100ms", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "window_size": 2048,
  "hop_size": 1024,
  "band_radius": 50,
  "penalty_skip": 1.2,
  "recovery_enabled": true,
  "telemetry_interval": "1s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetWindowSize() != 2048 {
		t.Errorf("Expected WindowSize 2048, got %d", cfg.GetWindowSize())
	}
	if cfg.GetHopSize() != 1024 {
		t.Errorf("Expected HopSize 1024, got %d", cfg.GetHopSize())
	}
	if cfg.GetBandRadius() != 50 {
		t.Errorf("Expected BandRadius 50, got %d", cfg.GetBandRadius())
	}
	if cfg.GetPenaltySkip() != 1.2 {
		t.Errorf("Expected PenaltySkip 1.2, got %f", cfg.GetPenaltySkip())
	}
	if !cfg.GetRecoveryEnabled() {
		t.Error("Expected RecoveryEnabled true")
	}
	if cfg.GetTelemetryInterval() != time.Second {
		t.Errorf("Expected TelemetryInterval 1s, got %v", cfg.GetTelemetryInterval())
	}
	// unset fields keep their defaults
	if cfg.GetPenaltyWait() != 2.0 {
		t.Errorf("Expected default PenaltyWait 2.0, got %f", cfg.GetPenaltyWait())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	_, err := LoadTuningConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "window_size": "big"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad_values.json")
	if err := os.WriteFile(configPath, []byte(`{"window_size": 1000}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected validation error for non power of two window, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultTuningConfig()},
		{name: "empty config is valid", cfg: &TuningConfig{}},
		{name: "window not power of two", cfg: &TuningConfig{WindowSize: ptrInt(3000)}, wantErr: true},
		{name: "window too small", cfg: &TuningConfig{WindowSize: ptrInt(8)}, wantErr: true},
		{name: "hop larger than window", cfg: &TuningConfig{WindowSize: ptrInt(1024), HopSize: ptrInt(2048)}, wantErr: true},
		{name: "zero hop", cfg: &TuningConfig{HopSize: ptrInt(0)}, wantErr: true},
		{name: "overlapping hop", cfg: &TuningConfig{HopSize: ptrInt(512)}},
		{name: "negative noise floor", cfg: &TuningConfig{NoiseFloor: ptrFloat64(-1)}, wantErr: true},
		{name: "min bin beyond nyquist", cfg: &TuningConfig{WindowSize: ptrInt(64), MinBin: ptrInt(32)}, wantErr: true},
		{name: "negative skip penalty", cfg: &TuningConfig{PenaltySkip: ptrFloat64(-0.1)}, wantErr: true},
		{name: "negative radius", cfg: &TuningConfig{BandRadius: ptrInt(-1)}, wantErr: true},
		{name: "zero radius", cfg: &TuningConfig{BandRadius: ptrInt(0)}},
		{name: "negative offset", cfg: &TuningConfig{PageTurnOffset: ptrInt(-3)}, wantErr: true},
		{name: "zero smoothing", cfg: &TuningConfig{SmoothingWindow: ptrInt(0)}, wantErr: true},
		{name: "recovery threshold above one", cfg: &TuningConfig{RecoveryCostThreshold: ptrFloat64(1.5)}, wantErr: true},
		{name: "zero recovery threshold", cfg: &TuningConfig{RecoveryCostThreshold: ptrFloat64(0)}, wantErr: true},
		{name: "zero bpm", cfg: &TuningConfig{BPM: ptrFloat64(0)}, wantErr: true},
		{name: "bad telemetry interval", cfg: &TuningConfig{TelemetryInterval: ptrString("soon")}, wantErr: true},
		{name: "zero baud", cfg: &TuningConfig{SerialBaud: ptrInt(0)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetTelemetryInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{name: "explicit", cfg: &TuningConfig{TelemetryInterval: ptrString("2s")}, want: 2 * time.Second},
		{name: "nil pointer returns default", cfg: &TuningConfig{}, want: 250 * time.Millisecond},
		{name: "empty string returns default", cfg: &TuningConfig{TelemetryInterval: ptrString("")}, want: 250 * time.Millisecond},
		{name: "invalid duration returns default", cfg: &TuningConfig{TelemetryInterval: ptrString("invalid")}, want: 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetTelemetryInterval(); got != tt.want {
				t.Errorf("GetTelemetryInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMustLoadDefaultConfigMatchesBuiltins(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	def := DefaultTuningConfig()

	if cfg.GetWindowSize() != def.GetWindowSize() {
		t.Errorf("window_size: file %d, builtin %d", cfg.GetWindowSize(), def.GetWindowSize())
	}
	if cfg.GetSampleRate() != def.GetSampleRate() {
		t.Errorf("sample_rate: file %d, builtin %d", cfg.GetSampleRate(), def.GetSampleRate())
	}
	if cfg.GetPenaltySkip() != def.GetPenaltySkip() {
		t.Errorf("penalty_skip: file %f, builtin %f", cfg.GetPenaltySkip(), def.GetPenaltySkip())
	}
	if cfg.GetPageTurnOffset() != def.GetPageTurnOffset() {
		t.Errorf("page_turn_offset: file %d, builtin %d", cfg.GetPageTurnOffset(), def.GetPageTurnOffset())
	}
	if cfg.GetSerialBaud() != def.GetSerialBaud() {
		t.Errorf("serial_baud: file %d, builtin %d", cfg.GetSerialBaud(), def.GetSerialBaud())
	}
}
