package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyViewerConfigDefaults(t *testing.T) {
	cfg := EmptyViewerConfig()

	if got := cfg.GetParseFailureMode(); got != ParseFailureError {
		t.Errorf("GetParseFailureMode() = %q, want %q", got, ParseFailureError)
	}
	if cfg.DemoMode() {
		t.Error("DemoMode() = true, want false by default")
	}
	if got := cfg.GetMaxUploadBytes(); got != DefaultMaxUploadBytes {
		t.Errorf("GetMaxUploadBytes() = %d, want %d", got, DefaultMaxUploadBytes)
	}
	if got := cfg.GetMaxCSVRows(); got != 0 {
		t.Errorf("GetMaxCSVRows() = %d, want 0", got)
	}
	if got := cfg.GetTempDir(); got != "" {
		t.Errorf("GetTempDir() = %q, want empty", got)
	}
	if cfg.GetChartWidth() != DefaultChartWidth || cfg.GetChartHeight() != DefaultChartHeight {
		t.Errorf("chart size = %vx%v, want %vx%v", cfg.GetChartWidth(), cfg.GetChartHeight(), DefaultChartWidth, DefaultChartHeight)
	}
	if got := cfg.GetChartMaxPoints(); got != DefaultChartMaxPoints {
		t.Errorf("GetChartMaxPoints() = %d, want %d", got, DefaultChartMaxPoints)
	}
	if got := cfg.GetEChartsAssetsHost(); got != "" {
		t.Errorf("GetEChartsAssetsHost() = %q, want empty", got)
	}
	if got := cfg.GetLogLevel(); got != "info" {
		t.Errorf("GetLogLevel() = %q, want info", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadViewerConfig(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, "viewer.json", `{
  "parse_failure_mode": "demo",
  "max_upload_bytes": 1048576,
  "max_csv_rows": 500,
  "temp_dir": "`+tempDir+`",
  "chart_width": 800,
  "chart_height": 400,
  "chart_max_points": 2000,
  "echarts_assets_host": "/static/echarts/",
  "log_level": "debug"
}`)

	cfg, err := LoadViewerConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.DemoMode() {
		t.Error("DemoMode() = false, want true")
	}
	if cfg.GetMaxUploadBytes() != 1048576 {
		t.Errorf("GetMaxUploadBytes() = %d, want 1048576", cfg.GetMaxUploadBytes())
	}
	if cfg.GetMaxCSVRows() != 500 {
		t.Errorf("GetMaxCSVRows() = %d, want 500", cfg.GetMaxCSVRows())
	}
	if cfg.GetTempDir() != tempDir {
		t.Errorf("GetTempDir() = %q, want %q", cfg.GetTempDir(), tempDir)
	}
	if cfg.GetChartWidth() != 800 || cfg.GetChartHeight() != 400 {
		t.Errorf("chart size = %vx%v, want 800x400", cfg.GetChartWidth(), cfg.GetChartHeight())
	}
	if cfg.GetChartMaxPoints() != 2000 {
		t.Errorf("GetChartMaxPoints() = %d, want 2000", cfg.GetChartMaxPoints())
	}
	if cfg.GetEChartsAssetsHost() != "/static/echarts/" {
		t.Errorf("GetEChartsAssetsHost() = %q", cfg.GetEChartsAssetsHost())
	}
	if cfg.GetLogLevel() != "debug" {
		t.Errorf("GetLogLevel() = %q, want debug", cfg.GetLogLevel())
	}
}

func TestLoadViewerConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadViewerConfig("")
	if err != nil {
		t.Fatalf("LoadViewerConfig(\"\") error: %v", err)
	}
	if cfg.GetParseFailureMode() != ParseFailureError {
		t.Errorf("expected default mode, got %q", cfg.GetParseFailureMode())
	}
}

func TestLoadViewerConfig_PartialConfig(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"max_csv_rows": 10}`)

	cfg, err := LoadViewerConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetMaxCSVRows() != 10 {
		t.Errorf("GetMaxCSVRows() = %d, want 10", cfg.GetMaxCSVRows())
	}
	if cfg.GetMaxUploadBytes() != DefaultMaxUploadBytes {
		t.Errorf("omitted field should keep default, got %d", cfg.GetMaxUploadBytes())
	}
}

func TestLoadViewerConfig_Errors(t *testing.T) {
	notADir := writeConfig(t, "plain.txt", "x")

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "viewer.yaml", `{}`, "must have .json extension"},
		{"bad json", "bad.json", `{"max_csv_rows": }`, "failed to parse config JSON"},
		{"bad mode", "mode.json", `{"parse_failure_mode": "fallback"}`, "parse_failure_mode"},
		{"zero upload size", "size.json", `{"max_upload_bytes": 0}`, "max_upload_bytes"},
		{"negative rows", "rows.json", `{"max_csv_rows": -1}`, "max_csv_rows"},
		{"temp dir is a file", "tmp.json", `{"temp_dir": "` + notADir + `"}`, "is not a directory"},
		{"missing temp dir", "tmp2.json", `{"temp_dir": "/nonexistent/viewer-tmp"}`, "temp_dir"},
		{"bad width", "w.json", `{"chart_width": -5}`, "chart_width"},
		{"bad height", "h.json", `{"chart_height": 0}`, "chart_height"},
		{"too few points", "p.json", `{"chart_max_points": 1}`, "chart_max_points"},
		{"bad log level", "l.json", `{"log_level": "trace"}`, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadViewerConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadViewerConfig_MissingFile(t *testing.T) {
	_, err := LoadViewerConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to stat config file") {
		t.Errorf("expected stat error, got %v", err)
	}
}

func TestLoadViewerConfig_TooLarge(t *testing.T) {
	body := `{"log_level": "info", "echarts_assets_host": "` + strings.Repeat("a", maxConfigFileSize) + `"}`
	path := writeConfig(t, "large.json", body)
	_, err := LoadViewerConfig(path)
	if err == nil || !strings.Contains(err.Error(), "config file too large") {
		t.Errorf("expected size error, got %v", err)
	}
}
