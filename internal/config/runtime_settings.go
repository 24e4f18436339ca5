package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// RuntimeSettings are the user-tunable processing options. They live in a
// JSON file next to the job database so edits survive restarts, and they are
// snapshotted into each job when it starts.
type RuntimeSettings struct {
	Model          string  `json:"model"`
	UseGPU         bool    `json:"use_gpu"`
	OnlyMask       bool    `json:"only_mask"`
	AlphaMatting   bool    `json:"alpha_matting"`
	ExtraParams    string  `json:"extra_params"`
	BGColor        [3]int  `json:"bg_color"`
	ExtractionFPS  float64 `json:"extraction_fps"`
	OutputFPS      float64 `json:"output_fps"`
	FilenameFormat string  `json:"filename_format"`
	WatchCron      string  `json:"watch_cron"`
}

// DefaultRuntimeSettings returns the settings used before the user saves any.
func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		Model:          "u2net",
		UseGPU:         false,
		BGColor:        [3]int{0, 0, 0},
		FilenameFormat: DefaultFilenameFormat,
	}
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("model is required")
	}
	for _, c := range s.BGColor {
		if c < 0 || c > 255 {
			return fmt.Errorf("bg_color channels must be in 0-255, got %v", s.BGColor)
		}
	}
	if s.ExtractionFPS < 0 || s.ExtractionFPS > MaxFPS {
		return fmt.Errorf("extraction_fps must be in 0-%d", MaxFPS)
	}
	if s.OutputFPS < 0 || s.OutputFPS > MaxFPS {
		return fmt.Errorf("output_fps must be in 0-%d", MaxFPS)
	}
	if strings.TrimSpace(s.FilenameFormat) == "" {
		return fmt.Errorf("filename_format is required")
	}
	if s.WatchCron != "" {
		if _, err := cron.ParseStandard(s.WatchCron); err != nil {
			return fmt.Errorf("invalid watch_cron: %w", err)
		}
	}
	return nil
}

// WithRuntimeSettings overrides config values that runtime settings shadow.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if settings.WatchCron != "" {
			c.Watch.CronExpr = settings.WatchCron
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

// LoadRuntimeSettingsOrDefault reads the settings file, falling back to
// defaults when it does not exist yet.
func LoadRuntimeSettingsOrDefault(path string) RuntimeSettings {
	settings, err := LoadRuntimeSettingsFile(path)
	if err != nil {
		return DefaultRuntimeSettings()
	}
	if settings.FilenameFormat == "" {
		settings.FilenameFormat = DefaultFilenameFormat
	}
	return settings
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
