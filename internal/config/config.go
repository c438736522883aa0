package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Rebuild   RebuildConfig   `mapstructure:"rebuild"`
}

// ServerConfig holds local HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// BackendConfig holds the remote recommendation service settings.
type BackendConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"` // seconds, non-streaming calls only
	MediaType  string `mapstructure:"media_type"`
	Platform   string `mapstructure:"platform"`
	AppVersion string `mapstructure:"app_version"`
}

// AuthConfig holds the bearer token handed over by the auth provider.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// WatchlistConfig tunes the batched existence lookup.
type WatchlistConfig struct {
	BatchSize      int `mapstructure:"batch_size"`
	DebounceMs     int `mapstructure:"debounce_ms"`
	FlushThreshold int `mapstructure:"flush_threshold"`
}

// Debounce returns the debounce window as a duration.
func (c WatchlistConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// TelemetryConfig holds the shown-recommendations sink settings.
type TelemetryConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	MaxFailures      uint32 `mapstructure:"max_failures"`
	OpenTimeoutSecs  int    `mapstructure:"open_timeout"`
	IntervalSecs     int    `mapstructure:"interval"`
	HalfOpenRequests uint32 `mapstructure:"half_open_requests"`
}

// RebuildConfig holds the taste profile rebuild trigger settings.
type RebuildConfig struct {
	Threshold       int    `mapstructure:"threshold"`
	CooldownMinutes int    `mapstructure:"cooldown_minutes"`
	CheckCron       string `mapstructure:"check_cron"`
}

// Cooldown returns the cooldown as a duration.
func (c RebuildConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7878,
		},
		Database: DatabaseConfig{
			Path: "./data/reelwise.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			BufferSize: 500,
		},
		Backend: BackendConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   30,
			MediaType: "movie",
			Platform:  "agent",
		},
		Watchlist: WatchlistConfig{
			BatchSize:      20,
			DebounceMs:     300,
			FlushThreshold: 12,
		},
		Telemetry: TelemetryConfig{
			Enabled:          true,
			MaxFailures:      5,
			OpenTimeoutSecs:  60,
			IntervalSecs:     120,
			HalfOpenRequests: 1,
		},
		Rebuild: RebuildConfig{
			Threshold:       5,
			CooldownMinutes: 10,
			CheckCron:       "* * * * *",
		},
	}
}

// Load reads configuration from .env, the config file and environment
// variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// A local .env only seeds the process environment; real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.reelwise")
	}

	v.SetEnvPrefix("REELWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults mirrors Default so env-only deployments get the same values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.buffer_size", d.Logging.BufferSize)

	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("backend.media_type", d.Backend.MediaType)
	v.SetDefault("backend.platform", d.Backend.Platform)
	v.SetDefault("backend.app_version", d.Backend.AppVersion)

	v.SetDefault("auth.token", "")

	v.SetDefault("watchlist.batch_size", d.Watchlist.BatchSize)
	v.SetDefault("watchlist.debounce_ms", d.Watchlist.DebounceMs)
	v.SetDefault("watchlist.flush_threshold", d.Watchlist.FlushThreshold)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.max_failures", d.Telemetry.MaxFailures)
	v.SetDefault("telemetry.open_timeout", d.Telemetry.OpenTimeoutSecs)
	v.SetDefault("telemetry.interval", d.Telemetry.IntervalSecs)
	v.SetDefault("telemetry.half_open_requests", d.Telemetry.HalfOpenRequests)

	v.SetDefault("rebuild.threshold", d.Rebuild.Threshold)
	v.SetDefault("rebuild.cooldown_minutes", d.Rebuild.CooldownMinutes)
	v.SetDefault("rebuild.check_cron", d.Rebuild.CheckCron)
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Watchlist.BatchSize <= 0 {
		return fmt.Errorf("watchlist.batch_size must be positive, got %d", c.Watchlist.BatchSize)
	}
	if c.Watchlist.FlushThreshold <= 0 {
		return fmt.Errorf("watchlist.flush_threshold must be positive, got %d", c.Watchlist.FlushThreshold)
	}
	if c.Rebuild.Threshold <= 0 {
		return fmt.Errorf("rebuild.threshold must be positive, got %d", c.Rebuild.Threshold)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
