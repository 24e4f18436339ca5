package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeSettings_Validate(t *testing.T) {
	t.Parallel()

	valid := DefaultRuntimeSettings()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RuntimeSettings)
	}{
		{"empty model", func(s *RuntimeSettings) { s.Model = "  " }},
		{"channel above range", func(s *RuntimeSettings) { s.BGColor = [3]int{0, 256, 0} }},
		{"negative channel", func(s *RuntimeSettings) { s.BGColor = [3]int{-1, 0, 0} }},
		{"extraction fps too high", func(s *RuntimeSettings) { s.ExtractionFPS = 121 }},
		{"negative output fps", func(s *RuntimeSettings) { s.OutputFPS = -1 }},
		{"empty filename format", func(s *RuntimeSettings) { s.FilenameFormat = "" }},
		{"bad watch cron", func(s *RuntimeSettings) { s.WatchCron = "every day at noon" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultRuntimeSettings()
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}

	withCron := DefaultRuntimeSettings()
	withCron.WatchCron = "*/10 * * * *"
	assert.NoError(t, withCron.Validate())
}

func TestRuntimeSettings_FileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")

	settings := DefaultRuntimeSettings()
	settings.Model = "isnet-general-use"
	settings.UseGPU = true
	settings.BGColor = [3]int{12, 34, 56}
	settings.ExtractionFPS = 10
	require.NoError(t, WriteRuntimeSettingsFile(path, settings))

	loaded, err := LoadRuntimeSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)

	// No stray temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRuntimeSettings_WriteRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	bad := DefaultRuntimeSettings()
	bad.Model = ""
	require.Error(t, WriteRuntimeSettingsFile(path, bad))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRuntimeSettingsOrDefault(t *testing.T) {
	t.Parallel()

	missing := LoadRuntimeSettingsOrDefault(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, DefaultRuntimeSettings(), missing)
	assert.Equal(t, "u2net", missing.Model)
	assert.Equal(t, [3]int{0, 0, 0}, missing.BGColor)

	// Settings written by an older build without a filename format get the
	// default filled in.
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":"u2net"}`), 0o644))
	loaded := LoadRuntimeSettingsOrDefault(path)
	assert.Equal(t, DefaultFilenameFormat, loaded.FilenameFormat)
}

func TestNewFromEnv_Defaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7000", cfg.Engine.URL)
	assert.Equal(t, 300, cfg.Engine.Timeout)
	assert.Equal(t, ":8080", cfg.System.HTTPAddr)
	assert.Equal(t, "@every 5m", cfg.Watch.CronExpr)
	assert.False(t, cfg.Watch.Enabled())
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "jobs.db"), cfg.Storage.DBPath())
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "settings.json"), cfg.Storage.SettingsPath())
}

func TestNewFromEnv_EnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_URL", "http://gpu-box:7000")
	t.Setenv("ENGINE_TIMEOUT", "60")
	t.Setenv("WATCH_DIR", "/inbox")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:7000", cfg.Engine.URL)
	assert.Equal(t, 60, cfg.Engine.Timeout)
	assert.True(t, cfg.Watch.Enabled())
}

func TestWithRuntimeSettings_OverridesWatchCron(t *testing.T) {
	settings := DefaultRuntimeSettings()
	settings.WatchCron = "*/15 * * * *"

	cfg, err := NewFromEnv(WithRuntimeSettings(settings))
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", cfg.Watch.CronExpr)
}
