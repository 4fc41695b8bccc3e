package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cablepark/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(logging config.LoggingConfig) *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "cablepark-test", Environment: "test", Version: "1.0.0"},
		Facility: config.FacilityConfig{Name: "Lakeside", Timezone: "Europe/Berlin"},
		Logging:  logging,
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(testConfig(config.LoggingConfig{}))
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("Stderr", func(t *testing.T) {
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: " DEBUG ", Output: "stderr"}))
		require.NoError(t, err)
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
		assert.Nil(t, closer)
	})

	t.Run("Console", func(t *testing.T) {
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: "warn", Format: "Console"}))
		require.NoError(t, err)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
		assert.Nil(t, closer)
	})

	t.Run("File", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "park.log")
		logger, closer, err := New(testConfig(config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}))
		require.NoError(t, err)
		require.NotNil(t, closer)
		logger.Info().Msg("dropped")
		logger.Error().Msg("written")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		var line map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
		assert.Equal(t, "written", line["message"])
		assert.Equal(t, "cablepark-test", line["app"])
		assert.Equal(t, "Lakeside", line["facility"])
		assert.Contains(t, line, "local")
		assert.NotContains(t, string(data), "dropped")
	})

	t.Run("NoTimezone", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "park.log")
		cfg := testConfig(config.LoggingConfig{Output: "file", FilePath: logPath})
		cfg.Facility = config.FacilityConfig{}
		logger, closer, err := New(cfg)
		require.NoError(t, err)
		logger.Info().Msg("hello")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"local"`)
		assert.NotContains(t, string(data), `"facility"`)
	})

	t.Run("BadTimezone", func(t *testing.T) {
		cfg := testConfig(config.LoggingConfig{})
		cfg.Facility.Timezone = "Mars/Olympus"
		_, _, err := New(cfg)
		assert.ErrorContains(t, err, "facility timezone")
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(testConfig(config.LoggingConfig{Output: "file"}))
		assert.ErrorContains(t, err, "needs file_path")
	})

	t.Run("UnknownOutput", func(t *testing.T) {
		_, _, err := New(testConfig(config.LoggingConfig{Output: "syslog"}))
		assert.ErrorContains(t, err, `unknown output "syslog"`)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		logger, _, err := New(testConfig(config.LoggingConfig{Level: "loud"}))
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestWallClock(t *testing.T) {
	var buf bytes.Buffer
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	fixed := func() time.Time { return time.Date(2025, 5, 25, 21, 30, 0, 0, time.UTC) }

	logger := zerolog.New(&buf).Hook(wallClock{zone: berlin, now: fixed})
	logger.Info().Msg("slot booked")
	assert.Contains(t, buf.String(), `"local":"Sun 2025-05-25 23:30"`)
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Component(&base, "grid").Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"grid"`)
}
