package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/signal.viewer/internal/monitoring"
)

// Parse failure policies for waveform uploads.
const (
	// ParseFailureError reports parser failures to the caller as a 400.
	ParseFailureError = "error"
	// ParseFailureDemo substitutes a synthetic record for unreadable uploads.
	ParseFailureDemo = "demo"
)

// Defaults applied by the Get* accessors.
const (
	DefaultMaxUploadBytes int64 = 32 << 20
	DefaultChartWidth           = 1200.0
	DefaultChartHeight          = 600.0
	DefaultChartMaxPoints       = 5000
	DefaultLogLevel             = "info"
)

const maxConfigFileSize = 1 * 1024 * 1024

// ViewerConfig is the JSON configuration file of the viewer. Every field is
// optional; omitted fields fall back to the defaults of the Get* methods.
type ViewerConfig struct {
	ParseFailureMode  *string  `json:"parse_failure_mode,omitempty"`
	MaxUploadBytes    *int64   `json:"max_upload_bytes,omitempty"`
	MaxCSVRows        *int     `json:"max_csv_rows,omitempty"`
	TempDir           *string  `json:"temp_dir,omitempty"`
	ChartWidth        *float64 `json:"chart_width,omitempty"`  // PNG width in points
	ChartHeight       *float64 `json:"chart_height,omitempty"` // PNG height in points
	ChartMaxPoints    *int     `json:"chart_max_points,omitempty"`
	EChartsAssetsHost *string  `json:"echarts_assets_host,omitempty"`
	LogLevel          *string  `json:"log_level,omitempty"`
}

// EmptyViewerConfig returns a ViewerConfig with all fields unset.
func EmptyViewerConfig() *ViewerConfig {
	return &ViewerConfig{}
}

// LoadViewerConfig loads a ViewerConfig from a JSON file. The file must have
// a .json extension and be at most 1MB. An empty path yields the defaults.
func LoadViewerConfig(path string) (*ViewerConfig, error) {
	if path == "" {
		return EmptyViewerConfig(), nil
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyViewerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ViewerConfig) Validate() error {
	if c.ParseFailureMode != nil {
		switch *c.ParseFailureMode {
		case ParseFailureError, ParseFailureDemo:
		default:
			return fmt.Errorf("parse_failure_mode must be %q or %q, got %q",
				ParseFailureError, ParseFailureDemo, *c.ParseFailureMode)
		}
	}

	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}

	if c.MaxCSVRows != nil && *c.MaxCSVRows < 0 {
		return fmt.Errorf("max_csv_rows must be non-negative, got %d", *c.MaxCSVRows)
	}

	if c.TempDir != nil && *c.TempDir != "" {
		info, err := os.Stat(*c.TempDir)
		if err != nil {
			return fmt.Errorf("temp_dir %q: %w", *c.TempDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp_dir %q is not a directory", *c.TempDir)
		}
	}

	if c.ChartWidth != nil && *c.ChartWidth <= 0 {
		return fmt.Errorf("chart_width must be positive, got %f", *c.ChartWidth)
	}
	if c.ChartHeight != nil && *c.ChartHeight <= 0 {
		return fmt.Errorf("chart_height must be positive, got %f", *c.ChartHeight)
	}

	if c.ChartMaxPoints != nil && *c.ChartMaxPoints < 2 {
		return fmt.Errorf("chart_max_points must be at least 2, got %d", *c.ChartMaxPoints)
	}

	if c.LogLevel != nil && !monitoring.ValidLevel(*c.LogLevel) {
		return fmt.Errorf("invalid log_level %q", *c.LogLevel)
	}

	return nil
}

// GetParseFailureMode returns the parse_failure_mode value or the default.
func (c *ViewerConfig) GetParseFailureMode() string {
	if c.ParseFailureMode == nil {
		return ParseFailureError
	}
	return *c.ParseFailureMode
}

// DemoMode reports whether synthetic fallback records are enabled.
func (c *ViewerConfig) DemoMode() bool {
	return c.GetParseFailureMode() == ParseFailureDemo
}

// GetMaxUploadBytes returns the max_upload_bytes value or the default.
func (c *ViewerConfig) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return DefaultMaxUploadBytes
	}
	return *c.MaxUploadBytes
}

// GetMaxCSVRows returns the max_csv_rows value; 0 means unlimited.
func (c *ViewerConfig) GetMaxCSVRows() int {
	if c.MaxCSVRows == nil {
		return 0
	}
	return *c.MaxCSVRows
}

// GetTempDir returns the temp_dir value; "" means the OS default.
func (c *ViewerConfig) GetTempDir() string {
	if c.TempDir == nil {
		return ""
	}
	return *c.TempDir
}

// GetChartWidth returns the chart_width value or the default.
func (c *ViewerConfig) GetChartWidth() float64 {
	if c.ChartWidth == nil {
		return DefaultChartWidth
	}
	return *c.ChartWidth
}

// GetChartHeight returns the chart_height value or the default.
func (c *ViewerConfig) GetChartHeight() float64 {
	if c.ChartHeight == nil {
		return DefaultChartHeight
	}
	return *c.ChartHeight
}

// GetChartMaxPoints returns the chart_max_points value or the default.
func (c *ViewerConfig) GetChartMaxPoints() int {
	if c.ChartMaxPoints == nil {
		return DefaultChartMaxPoints
	}
	return *c.ChartMaxPoints
}

// GetEChartsAssetsHost returns the echarts_assets_host value; "" keeps the
// go-echarts default CDN.
func (c *ViewerConfig) GetEChartsAssetsHost() string {
	if c.EChartsAssetsHost == nil {
		return ""
	}
	return *c.EChartsAssetsHost
}

// GetLogLevel returns the log_level value or the default.
func (c *ViewerConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return DefaultLogLevel
	}
	return *c.LogLevel
}
