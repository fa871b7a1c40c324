package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default threshold values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds every empirically-calibrated threshold used by the
// analysis pipeline. The schema matches the /api/params endpoint so the same
// JSON can be used for both startup configuration and runtime updates.
// Fields are pointers so a partial JSON file only overrides what it names.
type TuningConfig struct {
	// Ingestion params
	JointConfidenceFloor *float64 `json:"joint_confidence_floor,omitempty"`
	MetricWindowFrames   *int     `json:"metric_window_frames,omitempty"`

	// Rep segmentation params
	DepthDeadband       *float64 `json:"depth_deadband,omitempty"`
	MinPhaseDwell       *string  `json:"min_phase_dwell,omitempty"` // duration string like "120ms"
	StandingTolerance   *float64 `json:"standing_tolerance,omitempty"`
	DetectionGapTimeout *string  `json:"detection_gap_timeout,omitempty"` // duration string like "700ms"
	BaselineAlpha       *float64 `json:"baseline_alpha,omitempty"`

	// Form rule thresholds
	MinDepthRatio    *float64 `json:"min_depth_ratio,omitempty"`
	MaxKneeValgusDeg *float64 `json:"max_knee_valgus_deg,omitempty"`
	MaxTorsoAngleDeg *float64 `json:"max_torso_angle_deg,omitempty"`
	HeelLiftEpsilon  *float64 `json:"heel_lift_epsilon,omitempty"`
	MinAscentSeconds *float64 `json:"min_ascent_seconds,omitempty"`
	MaxAscentSeconds *float64 `json:"max_ascent_seconds,omitempty"`

	// Live pipeline params
	MaxFrameRate *float64 `json:"max_frame_rate,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// Fields omitted from the JSON file retain their default values, so partial
// configs are safe.
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
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge overlays the non-nil fields of other onto c. Used by the runtime
// params endpoint to apply partial updates.
func (c *TuningConfig) Merge(other *TuningConfig) {
	if other == nil {
		return
	}
	if other.JointConfidenceFloor != nil {
		c.JointConfidenceFloor = other.JointConfidenceFloor
	}
	if other.MetricWindowFrames != nil {
		c.MetricWindowFrames = other.MetricWindowFrames
	}
	if other.DepthDeadband != nil {
		c.DepthDeadband = other.DepthDeadband
	}
	if other.MinPhaseDwell != nil {
		c.MinPhaseDwell = other.MinPhaseDwell
	}
	if other.StandingTolerance != nil {
		c.StandingTolerance = other.StandingTolerance
	}
	if other.DetectionGapTimeout != nil {
		c.DetectionGapTimeout = other.DetectionGapTimeout
	}
	if other.BaselineAlpha != nil {
		c.BaselineAlpha = other.BaselineAlpha
	}
	if other.MinDepthRatio != nil {
		c.MinDepthRatio = other.MinDepthRatio
	}
	if other.MaxKneeValgusDeg != nil {
		c.MaxKneeValgusDeg = other.MaxKneeValgusDeg
	}
	if other.MaxTorsoAngleDeg != nil {
		c.MaxTorsoAngleDeg = other.MaxTorsoAngleDeg
	}
	if other.HeelLiftEpsilon != nil {
		c.HeelLiftEpsilon = other.HeelLiftEpsilon
	}
	if other.MinAscentSeconds != nil {
		c.MinAscentSeconds = other.MinAscentSeconds
	}
	if other.MaxAscentSeconds != nil {
		c.MaxAscentSeconds = other.MaxAscentSeconds
	}
	if other.MaxFrameRate != nil {
		c.MaxFrameRate = other.MaxFrameRate
	}
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.JointConfidenceFloor != nil {
		if *c.JointConfidenceFloor < 0 || *c.JointConfidenceFloor > 1 {
			return fmt.Errorf("joint_confidence_floor must be between 0 and 1, got %f", *c.JointConfidenceFloor)
		}
	}

	if c.MetricWindowFrames != nil {
		if *c.MetricWindowFrames < 1 {
			return fmt.Errorf("metric_window_frames must be at least 1, got %d", *c.MetricWindowFrames)
		}
	}

	if c.DepthDeadband != nil {
		if *c.DepthDeadband <= 0 || *c.DepthDeadband > 0.5 {
			return fmt.Errorf("depth_deadband must be in (0, 0.5], got %f", *c.DepthDeadband)
		}
	}

	if c.MinPhaseDwell != nil && *c.MinPhaseDwell != "" {
		if _, err := time.ParseDuration(*c.MinPhaseDwell); err != nil {
			return fmt.Errorf("invalid min_phase_dwell '%s': %w", *c.MinPhaseDwell, err)
		}
	}

	if c.DetectionGapTimeout != nil && *c.DetectionGapTimeout != "" {
		if _, err := time.ParseDuration(*c.DetectionGapTimeout); err != nil {
			return fmt.Errorf("invalid detection_gap_timeout '%s': %w", *c.DetectionGapTimeout, err)
		}
	}

	if c.BaselineAlpha != nil {
		if *c.BaselineAlpha < 0 || *c.BaselineAlpha > 1 {
			return fmt.Errorf("baseline_alpha must be between 0 and 1, got %f", *c.BaselineAlpha)
		}
	}

	if c.MinAscentSeconds != nil && c.MaxAscentSeconds != nil {
		if *c.MinAscentSeconds >= *c.MaxAscentSeconds {
			return fmt.Errorf("min_ascent_seconds (%f) must be below max_ascent_seconds (%f)",
				*c.MinAscentSeconds, *c.MaxAscentSeconds)
		}
	}

	return nil
}

// GetJointConfidenceFloor returns the joint_confidence_floor value or the default.
func (c *TuningConfig) GetJointConfidenceFloor() float64 {
	if c.JointConfidenceFloor == nil {
		return 0.35
	}
	return *c.JointConfidenceFloor
}

// GetMetricWindowFrames returns the metric_window_frames value or the default.
func (c *TuningConfig) GetMetricWindowFrames() int {
	if c.MetricWindowFrames == nil {
		return 5
	}
	return *c.MetricWindowFrames
}

// GetDepthDeadband returns the depth_deadband value or the default.
func (c *TuningConfig) GetDepthDeadband() float64 {
	if c.DepthDeadband == nil {
		return 0.04
	}
	return *c.DepthDeadband
}

// GetMinPhaseDwell parses and returns the MinPhaseDwell as a time.Duration.
func (c *TuningConfig) GetMinPhaseDwell() time.Duration {
	if c.MinPhaseDwell == nil || *c.MinPhaseDwell == "" {
		return 120 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.MinPhaseDwell)
	if err != nil {
		return 120 * time.Millisecond
	}
	return d
}

// GetStandingTolerance returns the standing_tolerance value or the default.
func (c *TuningConfig) GetStandingTolerance() float64 {
	if c.StandingTolerance == nil {
		return 0.05
	}
	return *c.StandingTolerance
}

// GetDetectionGapTimeout parses and returns the DetectionGapTimeout as a time.Duration.
func (c *TuningConfig) GetDetectionGapTimeout() time.Duration {
	if c.DetectionGapTimeout == nil || *c.DetectionGapTimeout == "" {
		return 700 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.DetectionGapTimeout)
	if err != nil {
		return 700 * time.Millisecond
	}
	return d
}

// GetBaselineAlpha returns the baseline_alpha value or the default.
func (c *TuningConfig) GetBaselineAlpha() float64 {
	if c.BaselineAlpha == nil {
		return 0.05
	}
	return *c.BaselineAlpha
}

// GetMinDepthRatio returns the min_depth_ratio value or the default.
func (c *TuningConfig) GetMinDepthRatio() float64 {
	if c.MinDepthRatio == nil {
		return 1.0
	}
	return *c.MinDepthRatio
}

// GetMaxKneeValgusDeg returns the max_knee_valgus_deg value or the default.
func (c *TuningConfig) GetMaxKneeValgusDeg() float64 {
	if c.MaxKneeValgusDeg == nil {
		return 12.0
	}
	return *c.MaxKneeValgusDeg
}

// GetMaxTorsoAngleDeg returns the max_torso_angle_deg value or the default.
func (c *TuningConfig) GetMaxTorsoAngleDeg() float64 {
	if c.MaxTorsoAngleDeg == nil {
		return 45.0
	}
	return *c.MaxTorsoAngleDeg
}

// GetHeelLiftEpsilon returns the heel_lift_epsilon value or the default.
func (c *TuningConfig) GetHeelLiftEpsilon() float64 {
	if c.HeelLiftEpsilon == nil {
		return 0.03
	}
	return *c.HeelLiftEpsilon
}

// GetMinAscentSeconds returns the min_ascent_seconds value or the default.
func (c *TuningConfig) GetMinAscentSeconds() float64 {
	if c.MinAscentSeconds == nil {
		return 0.4
	}
	return *c.MinAscentSeconds
}

// GetMaxAscentSeconds returns the max_ascent_seconds value or the default.
func (c *TuningConfig) GetMaxAscentSeconds() float64 {
	if c.MaxAscentSeconds == nil {
		return 4.0
	}
	return *c.MaxAscentSeconds
}

// GetMaxFrameRate returns the max_frame_rate value or the default.
// Zero means no limit (process every frame).
func (c *TuningConfig) GetMaxFrameRate() float64 {
	if c.MaxFrameRate == nil {
		return 30.0
	}
	return *c.MaxFrameRate
}
