package config

import (
	"errors"
	"fmt"
	"os"

	"cablepark/internal/localtime"
	"cablepark/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig         `yaml:"app"`
	Facility       FacilityConfig    `yaml:"facility"`
	OperatingHours []models.DayHours `yaml:"operating_hours"`
	Database       DatabaseConfig    `yaml:"database"`
	Redis          RedisConfig       `yaml:"redis"`
	Cache          CacheConfig       `yaml:"cache"`
	Backup         BackupConfig      `yaml:"backup"`
	Monitoring     MonitoringConfig  `yaml:"monitoring"`
	Logging        LoggingConfig     `yaml:"logging"`
	API            APIConfig         `yaml:"api"`
	Exports        ExportConfig      `yaml:"exports"`
}

// FacilityConfig describes the single bookable resource.
type FacilityConfig struct {
	Name            string          `yaml:"name"`
	Timezone        string          `yaml:"timezone"`
	MinPrice        decimal.Decimal `yaml:"min_price"`
	DefaultPrice    decimal.Decimal `yaml:"default_price"`
	ReferencePrefix string          `yaml:"reference_prefix"`
	MaxBookingDays  int             `yaml:"max_booking_days"`
	// MinBookingAdvance is how many minutes before a slot starts guests may
	// still book it.
	MinBookingAdvance int `yaml:"min_booking_advance"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ExportConfig controls workbook exports. With RefreshOnChange set, every
// schedule change rewrites the affected week's file under Path.
type ExportConfig struct {
	Path            string `yaml:"path"`
	RefreshOnChange bool   `yaml:"refresh_on_change"`
	MaxRetries      int    `yaml:"max_retries"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// CacheConfig controls the week-grid cache. Backend is "redis" or "memory".
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values already in the environment win
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, err := localtime.Load(c.Facility.Timezone); err != nil {
		return fmt.Errorf("facility timezone: %w", err)
	}
	if c.Facility.MinPrice.IsNegative() {
		return errors.New("facility min_price must not be negative")
	}
	if c.Facility.DefaultPrice.LessThan(c.Facility.MinPrice) {
		return fmt.Errorf("facility default_price %s is below min_price %s", c.Facility.DefaultPrice, c.Facility.MinPrice)
	}
	if c.Facility.MaxBookingDays < 0 || c.Facility.MinBookingAdvance < 0 {
		return errors.New("facility booking limits must not be negative")
	}
	if _, err := c.Hours(); err != nil {
		return fmt.Errorf("operating hours: %w", err)
	}
	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

// Hours converts the operating_hours list into the canonical weekly table.
func (c *Config) Hours() (models.OperatingHours, error) {
	return models.HoursFromList(c.OperatingHours)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if k.Extra == "" {
			return fmt.Errorf("api extra for client '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "cablepark"
	}
	if c.Facility.Timezone == "" {
		c.Facility.Timezone = "UTC"
	}
	if c.Facility.ReferencePrefix == "" {
		c.Facility.ReferencePrefix = models.DefaultReferencePrefix
	}
	if c.Facility.MaxBookingDays == 0 {
		c.Facility.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Facility.DefaultPrice.IsZero() {
		c.Facility.DefaultPrice = c.Facility.MinPrice
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// keys configured means auth is on
	if len(c.API.Auth.APIKeys) > 0 {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = models.DefaultGridCacheTTL
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
