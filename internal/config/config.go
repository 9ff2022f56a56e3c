// Package config provides configuration loading and validation for
// Vireo. Supports YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a vireod process.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Redis         RedisConfig         `yaml:"redis"`
	Database      DatabaseConfig      `yaml:"database"`
	Timeline      TimelineConfig      `yaml:"timeline"`
	Vacuum        VacuumConfig        `yaml:"vacuum"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr" env:"VIREO_LISTEN_ADDR"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"VIREO_REDIS_ADDR"`
	Password string `yaml:"password" env:"VIREO_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"VIREO_REDIS_DB"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"VIREO_DATABASE_DSN"`
}

type TimelineConfig struct {
	MaxHomeSize    int64 `yaml:"maxHomeSize" env:"VIREO_TIMELINE_MAX_HOME"`
	MaxListSize    int64 `yaml:"maxListSize" env:"VIREO_TIMELINE_MAX_LIST"`
	MaxAntennaSize int64 `yaml:"maxAntennaSize" env:"VIREO_TIMELINE_MAX_ANTENNA"`
}

type VacuumConfig struct {
	Enabled               bool    `yaml:"enabled" env:"VIREO_VACUUM_ENABLED"`
	IntervalMs            int64   `yaml:"intervalMs" env:"VIREO_VACUUM_INTERVAL_MS"`
	InactivityThresholdMs int64   `yaml:"inactivityThresholdMs" env:"VIREO_VACUUM_THRESHOLD_MS"`
	Concurrency           int     `yaml:"concurrency" env:"VIREO_VACUUM_CONCURRENCY"`
	DeleteAttempts        int     `yaml:"deleteAttempts" env:"VIREO_VACUUM_DELETE_ATTEMPTS"`
	RatePerSecond         float64 `yaml:"ratePerSecond" env:"VIREO_VACUUM_RATE_PER_SECOND"`
	DryRun                bool    `yaml:"dryRun" env:"VIREO_VACUUM_DRY_RUN"`
}

// Interval converts the configured sweep interval to a duration.
func (c VacuumConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// InactivityThreshold converts the configured threshold to a duration.
func (c VacuumConfig) InactivityThreshold() time.Duration {
	return time.Duration(c.InactivityThresholdMs) * time.Millisecond
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel" env:"VIREO_LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" env:"VIREO_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8090",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Timeline: TimelineConfig{
			MaxHomeSize:    400,
			MaxListSize:    400,
			MaxAntennaSize: 400,
		},
		Vacuum: VacuumConfig{
			Enabled:               true,
			IntervalMs:            24 * 60 * 60 * 1000,      // daily
			InactivityThresholdMs: 21 * 24 * 60 * 60 * 1000, // 3 weeks
			Concurrency:           4,
			DeleteAttempts:        3,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration from defaults plus environment
// variable overrides.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML config file, then applies environment
// variable overrides on top of it.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("VIREO_LISTEN_ADDR", &c.Server.ListenAddr)
	envString("VIREO_REDIS_ADDR", &c.Redis.Addr)
	envString("VIREO_REDIS_PASSWORD", &c.Redis.Password)
	envInt("VIREO_REDIS_DB", &c.Redis.DB)
	envString("VIREO_DATABASE_DSN", &c.Database.DSN)
	envInt64("VIREO_TIMELINE_MAX_HOME", &c.Timeline.MaxHomeSize)
	envInt64("VIREO_TIMELINE_MAX_LIST", &c.Timeline.MaxListSize)
	envInt64("VIREO_TIMELINE_MAX_ANTENNA", &c.Timeline.MaxAntennaSize)
	envBool("VIREO_VACUUM_ENABLED", &c.Vacuum.Enabled)
	envInt64("VIREO_VACUUM_INTERVAL_MS", &c.Vacuum.IntervalMs)
	envInt64("VIREO_VACUUM_THRESHOLD_MS", &c.Vacuum.InactivityThresholdMs)
	envInt("VIREO_VACUUM_CONCURRENCY", &c.Vacuum.Concurrency)
	envInt("VIREO_VACUUM_DELETE_ATTEMPTS", &c.Vacuum.DeleteAttempts)
	envFloat("VIREO_VACUUM_RATE_PER_SECOND", &c.Vacuum.RatePerSecond)
	envBool("VIREO_VACUUM_DRY_RUN", &c.Vacuum.DryRun)
	envString("VIREO_LOG_LEVEL", &c.Observability.LogLevel)
	envString("VIREO_LOG_FORMAT", &c.Observability.LogFormat)
}

// Validate checks the configuration for values that would break the
// process at runtime.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Timeline.MaxHomeSize < 0 || c.Timeline.MaxListSize < 0 || c.Timeline.MaxAntennaSize < 0 {
		return fmt.Errorf("config: timeline capacities must not be negative")
	}
	if c.Vacuum.IntervalMs <= 0 {
		return fmt.Errorf("config: vacuum.intervalMs must be positive")
	}
	if c.Vacuum.InactivityThresholdMs <= 0 {
		return fmt.Errorf("config: vacuum.inactivityThresholdMs must be positive")
	}
	if c.Vacuum.Concurrency <= 0 {
		return fmt.Errorf("config: vacuum.concurrency must be positive")
	}
	if c.Vacuum.RatePerSecond < 0 {
		return fmt.Errorf("config: vacuum.ratePerSecond must not be negative")
	}
	return nil
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(name string, dst *int64) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v, ok := os.LookupEnv(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
