// Package config defines the startup configuration of a segmentation node and how it is read
// from disk.
package config

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

// Defaults applied to keys missing from a config file.
const (
	DefaultName      = "fcn_object_segmentation"
	DefaultBackend   = "onnx"
	DefaultGPU       = -1
	DefaultSlop      = 0.1
	DefaultQueueSize = 10
)

// Config is the immutable startup configuration of a node.
type Config struct {
	// ConfigFilePath is the file the config was read from, if any.
	ConfigFilePath string `json:"-"`

	Name    string `json:"name"`
	Backend string `json:"backend"`
	// GPU is the accelerator index; -1 runs on the host.
	GPU            int      `json:"gpu"`
	TargetNames    []string `json:"target_names"`
	BgLabel        int      `json:"bg_label"`
	ProbaThreshold float64  `json:"proba_threshold"`

	UseMask         bool `json:"use_mask"`
	ApproximateSync bool `json:"approximate_sync"`
	// Slop is the approximate sync tolerance in seconds.
	Slop      float64 `json:"slop"`
	QueueSize int     `json:"queue_size"`

	// AlwaysSubscribe consumes the inputs even when nobody listens to the outputs.
	AlwaysSubscribe bool `json:"always_subscribe"`

	// Attributes are the backend specific settings, e.g. model_name and model_file.
	Attributes map[string]interface{} `json:"attributes"`

	LogLevel *logging.Level `json:"log_level,omitempty"`
}

// Default returns a config with every default filled in and no target classes.
func Default() Config {
	return Config{
		Name:      DefaultName,
		Backend:   DefaultBackend,
		GPU:       DefaultGPU,
		Slop:      DefaultSlop,
		QueueSize: DefaultQueueSize,
	}
}

// Validate returns a ConfigurationError describing the first invalid key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return segmentation.NewConfigurationError("name must not be empty")
	}
	if c.Backend == "" {
		return segmentation.NewConfigurationError("backend must not be empty")
	}
	if c.GPU < -1 {
		return segmentation.NewConfigurationError("gpu must be -1 for the host or a device index, got %d", c.GPU)
	}
	if len(c.TargetNames) == 0 {
		return segmentation.NewConfigurationError("target_names is required")
	}
	if lo.Contains(c.TargetNames, "") {
		return segmentation.NewConfigurationError("target_names must not contain empty names")
	}
	if dups := lo.FindDuplicates(c.TargetNames); len(dups) > 0 {
		return segmentation.NewConfigurationError("target_names contains duplicates %v", dups)
	}
	if c.BgLabel < 0 || c.BgLabel >= len(c.TargetNames) {
		return segmentation.NewConfigurationError("bg_label %d out of range for %d target_names", c.BgLabel, len(c.TargetNames))
	}
	if c.ProbaThreshold < 0 || c.ProbaThreshold > 1 {
		return segmentation.NewConfigurationError("proba_threshold must be within [0, 1], got %v", c.ProbaThreshold)
	}
	if c.Slop < 0 {
		return segmentation.NewConfigurationError("slop must not be negative, got %v", c.Slop)
	}
	if c.QueueSize < 1 {
		return segmentation.NewConfigurationError("queue_size must be at least 1, got %d", c.QueueSize)
	}
	return nil
}

// SlopDuration returns Slop as a duration.
func (c *Config) SlopDuration() time.Duration {
	return time.Duration(c.Slop * float64(time.Second))
}

// BackendConfig returns the settings handed to the backend constructor.
func (c *Config) BackendConfig() segmentation.BackendConfig {
	return segmentation.BackendConfig{
		Name:        c.Backend,
		Device:      c.GPU,
		TargetNames: append([]string(nil), c.TargetNames...),
		Attributes:  c.Attributes,
	}
}

// PipelineConfig returns the threshold settings of the pipeline.
func (c *Config) PipelineConfig() segmentation.PipelineConfig {
	return segmentation.PipelineConfig{
		ProbaThreshold: float32(c.ProbaThreshold),
		BgLabel:        int32(c.BgLabel),
	}
}

// ClassName returns the name of label, or "unknown" when out of range.
func (c *Config) ClassName(label int) string {
	if label < 0 || label >= len(c.TargetNames) {
		return "unknown"
	}
	return c.TargetNames[label]
}
