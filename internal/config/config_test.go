package config

import (
	"os"
	"path/filepath"
	"testing"

	"cablepark/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CABLEPARK_TEST_KEY", "secret-from-env")

	path := writeConfig(t, `
facility:
  name: "Lake Cable"
  timezone: "Europe/Berlin"
  min_price: "12.50"
  default_price: 15
  reference_prefix: "WB"
operating_hours:
  - day: monday
    open: "10:00"
    close: "20:00"
  - day: sun
    open: "09:00"
    close: "24:00"
database:
  path: "test.db"
api:
  enabled: true
  auth:
    api_keys:
      - name: "frontdesk"
        key: "${CABLEPARK_TEST_KEY}"
        extra: "desk"
        permissions: ["read:grid", "write:bookings"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Lake Cable", cfg.Facility.Name)
	assert.True(t, cfg.Facility.MinPrice.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, cfg.Facility.DefaultPrice.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "secret-from-env", cfg.API.Auth.APIKeys[0].Key)
	assert.True(t, cfg.API.Auth.Enabled)
	assert.True(t, cfg.API.HTTP.Enabled)

	hours, err := cfg.Hours()
	require.NoError(t, err)
	assert.Equal(t, models.NewClockTime(10, 0), hours.Day(models.Monday).Open)
	assert.Equal(t, models.ClockTime(models.MinutesPerDay), hours.Day(models.Sunday).Close)
	assert.True(t, hours.Day(models.Tuesday).Closed)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{
			Database: DatabaseConfig{Path: "path"},
			Facility: FacilityConfig{Timezone: "Europe/Berlin", MinPrice: decimal.NewFromInt(10), DefaultPrice: decimal.NewFromInt(15)},
			OperatingHours: []models.DayHours{
				{Day: models.Friday, Open: models.NewClockTime(10, 0), Close: models.NewClockTime(18, 0)},
			},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Facility.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "default below minimum", mutate: func(c *Config) { c.Facility.DefaultPrice = decimal.NewFromInt(5) }, wantErr: true},
		{
			name: "misaligned hours",
			mutate: func(c *Config) {
				c.OperatingHours[0].Open = models.NewClockTime(10, 15)
			},
			wantErr: true,
		},
		{
			name: "duplicate day",
			mutate: func(c *Config) {
				c.OperatingHours = append(c.OperatingHours, c.OperatingHours[0])
			},
			wantErr: true,
		},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Name: "a", Key: "k", Extra: "x"}, {Name: "b", Key: "k", Extra: "y"}}
			},
			wantErr: true,
		},
		{
			name: "api key without extra",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Name: "kiosk", Key: "k"}}
			},
			wantErr: true,
		},
		{
			name: "api keys with extras",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Name: "a", Key: "k1", Extra: "x"}, {Name: "b", Key: "k2", Extra: "y"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Facility: FacilityConfig{MinPrice: decimal.NewFromInt(12)}}
	cfg.applyDefaults()

	assert.Equal(t, "UTC", cfg.Facility.Timezone)
	assert.Equal(t, models.DefaultReferencePrefix, cfg.Facility.ReferencePrefix)
	assert.Equal(t, models.DefaultMaxBookingDays, cfg.Facility.MaxBookingDays)
	assert.True(t, cfg.Facility.DefaultPrice.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.False(t, cfg.API.Auth.Enabled)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, models.DefaultGridCacheTTL, cfg.Cache.TTLSeconds)
}
