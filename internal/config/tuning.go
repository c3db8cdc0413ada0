package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trajectory.report/internal/detections"
	"github.com/banshee-data/trajectory.report/internal/pipeline"
	"github.com/banshee-data/trajectory.report/internal/units"
)

// TuningConfig represents the tuning parameters a run can override from a
// JSON file. All fields are pointers so a partial config only overrides
// what it names; nil fields fall back to the Get* defaults.
type TuningConfig struct {
	// Depth sampling params
	PatchRadius *int     `json:"patch_radius,omitempty"`
	TopBias     *float64 `json:"top_bias,omitempty"`

	// Pipeline params
	Workers *int `json:"workers,omitempty"`

	// Output params
	Units  *string `json:"units,omitempty"`
	GIFFPS *int    `json:"gif_fps,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Validate PatchRadius if set
	if c.PatchRadius != nil {
		if *c.PatchRadius < 0 {
			return fmt.Errorf("patch_radius must be non-negative, got %d", *c.PatchRadius)
		}
	}

	// Validate TopBias if set
	if c.TopBias != nil {
		if *c.TopBias < 0 || *c.TopBias > 1 {
			return fmt.Errorf("top_bias must be between 0 and 1, got %f", *c.TopBias)
		}
	}

	// Validate Workers if set
	if c.Workers != nil {
		if *c.Workers < 1 {
			return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
		}
	}

	// Validate Units if set
	if c.Units != nil {
		if !units.IsValid(*c.Units) {
			return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
		}
	}

	// Validate GIFFPS if set
	if c.GIFFPS != nil {
		if *c.GIFFPS < 1 || *c.GIFFPS > 60 {
			return fmt.Errorf("gif_fps must be between 1 and 60, got %d", *c.GIFFPS)
		}
	}

	return nil
}

// ApplyToParams overrides pipeline parameters with any values set in the config.
func (c *TuningConfig) ApplyToParams(p *pipeline.Params) {
	if c.PatchRadius != nil {
		p.PatchRadius = *c.PatchRadius
	}
	if c.TopBias != nil {
		p.TopBias = *c.TopBias
	}
	if c.Workers != nil {
		p.Workers = *c.Workers
	}
}

// GetPatchRadius returns the patch_radius value or the default.
func (c *TuningConfig) GetPatchRadius() int {
	if c.PatchRadius == nil {
		return 2 // default
	}
	return *c.PatchRadius
}

// GetTopBias returns the top_bias value or the default.
func (c *TuningConfig) GetTopBias() float64 {
	if c.TopBias == nil {
		return detections.DefaultTopBias
	}
	return *c.TopBias
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1 // default: sequential
	}
	return *c.Workers
}

// GetUnits returns the units value or the default.
func (c *TuningConfig) GetUnits() string {
	if c.Units == nil {
		return units.Meters
	}
	return *c.Units
}

// GetGIFFPS returns the gif_fps value or the default.
func (c *TuningConfig) GetGIFFPS() int {
	if c.GIFFPS == nil {
		return 10 // default
	}
	return *c.GIFFPS
}
