package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/larpix-data/tracklet.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for reconstruction
// parameters. Fields are pointers so that a partial JSON file only
// overrides what it names; the Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Cluster finder params
	DBSCANEps        *float64 `json:"dbscan_eps,omitempty"`
	DBSCANMinSamples *int     `json:"dbscan_min_samples,omitempty"`
	MaxClusterRounds *int     `json:"max_cluster_rounds,omitempty"`

	// RANSAC line fit params
	RANSACMinSamples        *int     `json:"ransac_min_samples,omitempty"`
	RANSACResidualThreshold *float64 `json:"ransac_residual_threshold,omitempty"`
	RANSACMaxTrials         *int     `json:"ransac_max_trials,omitempty"`
	RANSACSeed              *int64   `json:"ransac_seed,omitempty"`

	// Calibration params
	DriftVelocityMMPerMicros *float64 `json:"drift_velocity_mm_per_us,omitempty"`
	ClockTickMicros          *float64 `json:"clock_tick_us,omitempty"`

	// Batch params
	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
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
	const maxFileSize = 1 * 1024 * 1024
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
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/tpc/tracklet/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Validation
// failures are fatal at setup and never retried.
func (c *TuningConfig) Validate() error {
	if c.DBSCANEps != nil && *c.DBSCANEps <= 0 {
		return fmt.Errorf("dbscan_eps must be positive, got %f", *c.DBSCANEps)
	}
	if c.DBSCANMinSamples != nil && *c.DBSCANMinSamples < 1 {
		return fmt.Errorf("dbscan_min_samples must be at least 1, got %d", *c.DBSCANMinSamples)
	}
	if c.MaxClusterRounds != nil && *c.MaxClusterRounds < 1 {
		return fmt.Errorf("max_cluster_rounds must be at least 1, got %d", *c.MaxClusterRounds)
	}
	if c.RANSACMinSamples != nil && *c.RANSACMinSamples < 2 {
		return fmt.Errorf("ransac_min_samples must be at least 2, got %d", *c.RANSACMinSamples)
	}
	if c.RANSACResidualThreshold != nil && *c.RANSACResidualThreshold <= 0 {
		return fmt.Errorf("ransac_residual_threshold must be positive, got %f", *c.RANSACResidualThreshold)
	}
	if c.RANSACMaxTrials != nil && *c.RANSACMaxTrials < 1 {
		return fmt.Errorf("ransac_max_trials must be at least 1, got %d", *c.RANSACMaxTrials)
	}
	if c.DriftVelocityMMPerMicros != nil && *c.DriftVelocityMMPerMicros <= 0 {
		return fmt.Errorf("drift_velocity_mm_per_us must be positive, got %f", *c.DriftVelocityMMPerMicros)
	}
	if c.ClockTickMicros != nil && *c.ClockTickMicros <= 0 {
		return fmt.Errorf("clock_tick_us must be positive, got %f", *c.ClockTickMicros)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetDBSCANEps returns the dbscan_eps value or the default.
func (c *TuningConfig) GetDBSCANEps() float64 {
	if c.DBSCANEps == nil {
		return 2.5
	}
	return *c.DBSCANEps
}

// GetDBSCANMinSamples returns the dbscan_min_samples value or the default.
func (c *TuningConfig) GetDBSCANMinSamples() int {
	if c.DBSCANMinSamples == nil {
		return 5
	}
	return *c.DBSCANMinSamples
}

// GetMaxClusterRounds returns the max_cluster_rounds value or the default.
func (c *TuningConfig) GetMaxClusterRounds() int {
	if c.MaxClusterRounds == nil {
		return 100
	}
	return *c.MaxClusterRounds
}

// GetRANSACMinSamples returns the ransac_min_samples value or the default.
func (c *TuningConfig) GetRANSACMinSamples() int {
	if c.RANSACMinSamples == nil {
		return 2
	}
	return *c.RANSACMinSamples
}

// GetRANSACResidualThreshold returns the ransac_residual_threshold value or the default.
func (c *TuningConfig) GetRANSACResidualThreshold() float64 {
	if c.RANSACResidualThreshold == nil {
		return 8.0
	}
	return *c.RANSACResidualThreshold
}

// GetRANSACMaxTrials returns the ransac_max_trials value or the default.
func (c *TuningConfig) GetRANSACMaxTrials() int {
	if c.RANSACMaxTrials == nil {
		return 100
	}
	return *c.RANSACMaxTrials
}

// GetRANSACSeed returns the ransac_seed value or the default.
// The seed anchors RANSAC's random sampling so runs are reproducible;
// each event derives its own generator from this value.
func (c *TuningConfig) GetRANSACSeed() int64 {
	if c.RANSACSeed == nil {
		return 1
	}
	return *c.RANSACSeed
}

// GetDriftVelocityMMPerMicros returns the drift_velocity_mm_per_us value or the default.
func (c *TuningConfig) GetDriftVelocityMMPerMicros() float64 {
	if c.DriftVelocityMMPerMicros == nil {
		return units.DefaultDriftVelocityMMPerMicros
	}
	return *c.DriftVelocityMMPerMicros
}

// GetClockTickMicros returns the clock_tick_us value or the default.
func (c *TuningConfig) GetClockTickMicros() float64 {
	if c.ClockTickMicros == nil {
		return units.DefaultClockTickMicros
	}
	return *c.ClockTickMicros
}

// GetWorkers returns the workers value or the default. Zero means one
// worker per CPU, resolved by the caller.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}
