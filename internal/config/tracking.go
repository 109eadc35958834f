package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// Sensor nominal focal lengths in pixels for the supported resolutions.
const (
	ColorNominalFocalLength = 531.15 // 640x480 color
	DepthNominalFocalLength = 285.63 // 320x240 depth
)

// TrackingConfig represents the root configuration for the head tracking
// pipeline. Every field is optional; the Get* accessors supply defaults.
type TrackingConfig struct {
	// Capture params
	PollInterval     *string  `json:"poll_interval,omitempty" mapstructure:"poll_interval"` // duration string like "100ms"
	ColorWidth       *int     `json:"color_width,omitempty" mapstructure:"color_width"`
	ColorHeight      *int     `json:"color_height,omitempty" mapstructure:"color_height"`
	ColorFocalLength *float64 `json:"color_focal_length,omitempty" mapstructure:"color_focal_length"`
	DepthWidth       *int     `json:"depth_width,omitempty" mapstructure:"depth_width"`
	DepthHeight      *int     `json:"depth_height,omitempty" mapstructure:"depth_height"`
	DepthFocalLength *float64 `json:"depth_focal_length,omitempty" mapstructure:"depth_focal_length"`
	NearMode         *bool    `json:"near_mode,omitempty" mapstructure:"near_mode"`
	SeatedSupport    *bool    `json:"seated_support,omitempty" mapstructure:"seated_support"`

	// Sensor data params handed to the tracking engine
	ZoomFactor  *float64 `json:"zoom_factor,omitempty" mapstructure:"zoom_factor"`
	ViewOffsetX *int     `json:"view_offset_x,omitempty" mapstructure:"view_offset_x"`
	ViewOffsetY *int     `json:"view_offset_y,omitempty" mapstructure:"view_offset_y"`

	// Caller loop
	UpdateRateHz *float64 `json:"update_rate_hz,omitempty" mapstructure:"update_rate_hz"`

	// Recorder params (optional)
	RecordPath          *string `json:"record_path,omitempty" mapstructure:"record_path"`
	RecordFlushInterval *string `json:"record_flush_interval,omitempty" mapstructure:"record_flush_interval"` // duration string like "1s"
	RecordQueueSize     *int    `json:"record_queue_size,omitempty" mapstructure:"record_queue_size"`

	// HTTP listen address for /metrics and /debug/ (empty disables)
	Listen *string `json:"listen,omitempty" mapstructure:"listen"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackingConfig returns a TrackingConfig with all fields set to nil.
// The Get* accessors then return built-in defaults.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

var supportedExts = map[string]string{
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
}

// LoadTrackingConfig loads a TrackingConfig from a JSON, YAML or TOML file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	configType, ok := supportedExts[ext]
	if !ok {
		return nil, fmt.Errorf("config file must be .json, .yaml or .toml, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	v := viper.New()
	v.SetConfigFile(cleanPath)
	v.SetConfigType(configType)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TrackingConfig) Validate() error {
	for name, d := range map[string]*string{
		"poll_interval":         c.PollInterval,
		"record_flush_interval": c.RecordFlushInterval,
	} {
		if d == nil || *d == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}

	for name, v := range map[string]*int{
		"color_width":       c.ColorWidth,
		"color_height":      c.ColorHeight,
		"depth_width":       c.DepthWidth,
		"depth_height":      c.DepthHeight,
		"record_queue_size": c.RecordQueueSize,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"color_focal_length": c.ColorFocalLength,
		"depth_focal_length": c.DepthFocalLength,
		"zoom_factor":        c.ZoomFactor,
		"update_rate_hz":     c.UpdateRateHz,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	return nil
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetPollInterval returns the capture loop's bounded wait interval.
func (c *TrackingConfig) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, 100*time.Millisecond)
}

// GetColorWidth returns the color stream width in pixels.
func (c *TrackingConfig) GetColorWidth() int {
	if c.ColorWidth == nil {
		return 640
	}
	return *c.ColorWidth
}

// GetColorHeight returns the color stream height in pixels.
func (c *TrackingConfig) GetColorHeight() int {
	if c.ColorHeight == nil {
		return 480
	}
	return *c.ColorHeight
}

// GetColorFocalLength returns the color camera focal length in pixels.
func (c *TrackingConfig) GetColorFocalLength() float64 {
	if c.ColorFocalLength == nil {
		return ColorNominalFocalLength
	}
	return *c.ColorFocalLength
}

// GetDepthWidth returns the depth stream width in pixels.
func (c *TrackingConfig) GetDepthWidth() int {
	if c.DepthWidth == nil {
		return 320
	}
	return *c.DepthWidth
}

// GetDepthHeight returns the depth stream height in pixels.
func (c *TrackingConfig) GetDepthHeight() int {
	if c.DepthHeight == nil {
		return 240
	}
	return *c.DepthHeight
}

// GetDepthFocalLength returns the depth camera focal length in pixels.
func (c *TrackingConfig) GetDepthFocalLength() float64 {
	if c.DepthFocalLength == nil {
		return DepthNominalFocalLength
	}
	return *c.DepthFocalLength
}

// GetNearMode reports whether the depth stream runs in near mode.
func (c *TrackingConfig) GetNearMode() bool {
	if c.NearMode == nil {
		return true
	}
	return *c.NearMode
}

// GetSeatedSupport reports whether seated skeleton tracking is enabled.
func (c *TrackingConfig) GetSeatedSupport() bool {
	if c.SeatedSupport == nil {
		return true
	}
	return *c.SeatedSupport
}

// GetZoomFactor returns the color camera zoom factor.
func (c *TrackingConfig) GetZoomFactor() float64 {
	if c.ZoomFactor == nil {
		return 1.0
	}
	return *c.ZoomFactor
}

// GetViewOffset returns the color camera view offset in pixels.
func (c *TrackingConfig) GetViewOffset() (x, y int) {
	if c.ViewOffsetX != nil {
		x = *c.ViewOffsetX
	}
	if c.ViewOffsetY != nil {
		y = *c.ViewOffsetY
	}
	return x, y
}

// GetUpdateRateHz returns how often the caller loop runs Update.
func (c *TrackingConfig) GetUpdateRateHz() float64 {
	if c.UpdateRateHz == nil {
		return 30
	}
	return *c.UpdateRateHz
}

// GetRecordPath returns the sqlite path for pose recording, or "" when
// recording is disabled.
func (c *TrackingConfig) GetRecordPath() string {
	if c.RecordPath == nil {
		return ""
	}
	return *c.RecordPath
}

// GetRecordFlushInterval returns how often the recorder commits a batch.
func (c *TrackingConfig) GetRecordFlushInterval() time.Duration {
	return parseDurationOr(c.RecordFlushInterval, time.Second)
}

// GetRecordQueueSize returns the recorder's pending sample capacity.
func (c *TrackingConfig) GetRecordQueueSize() int {
	if c.RecordQueueSize == nil {
		return 256
	}
	return *c.RecordQueueSize
}

// GetListen returns the HTTP listen address.
func (c *TrackingConfig) GetListen() string {
	if c.Listen == nil {
		return ""
	}
	return *c.Listen
}
