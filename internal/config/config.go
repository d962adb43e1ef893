// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CREWCLOCK"

// Configuration errors
var (
	// ErrMissingStore indicates no authoritative store DSN is configured
	ErrMissingStore = errors.New("store is required")

	// ErrMissingQueueStore indicates no offline queue store DSN is configured
	ErrMissingQueueStore = errors.New("queue_store is required")

	// ErrInvalidGPSTimeout indicates a non-positive GPS capture timeout
	ErrInvalidGPSTimeout = errors.New("gps_timeout must be positive")

	// ErrInvalidSyncInterval indicates a sync interval under one second
	ErrInvalidSyncInterval = errors.New("sync_interval must be at least 1s")

	// ErrInvalidMaxAttempts indicates a non-positive sync attempt limit
	ErrInvalidMaxAttempts = errors.New("sync_max_attempts must be positive")

	// ErrInvalidTriggerRate indicates a non-positive sync trigger rate
	ErrInvalidTriggerRate = errors.New("sync_trigger_rps must be positive")

	// ErrInvalidJWTTTL indicates a non-positive token lifetime
	ErrInvalidJWTTTL = errors.New("jwt_ttl must be positive")

	// ErrInvalidRateLimit indicates a negative request rate limit
	ErrInvalidRateLimit = errors.New("rate_limit_rpm must not be negative")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("log_level must be debug, info, warn or error")
)

// Config is the process configuration.
type Config struct {
	// Store is the authoritative KV store DSN (see kv.Open)
	Store string `mapstructure:"store"`

	// QueueStore is the local store the offline queue lives in
	QueueStore string `mapstructure:"queue_store"`

	// Roster is the YAML file with members, crews and jobs
	Roster string `mapstructure:"roster"`

	// SettingsFile seeds the settings store when nothing is persisted yet
	SettingsFile string `mapstructure:"settings_file"`

	// GPSTimeout bounds each location capture
	GPSTimeout time.Duration `mapstructure:"gps_timeout"`

	// SyncInterval is the period between background drains
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// SyncMaxAttempts is how often an event is replayed before it is held
	SyncMaxAttempts int `mapstructure:"sync_max_attempts"`

	// SyncTriggerRPS limits connectivity-triggered drains
	SyncTriggerRPS float64 `mapstructure:"sync_trigger_rps"`

	// APIAddr is the HTTP listen address for serve
	APIAddr string `mapstructure:"api_addr"`

	// JWTSecret signs API bearer tokens; serve refuses to start without it
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWTTTL is the lifetime of minted tokens
	JWTTTL time.Duration `mapstructure:"jwt_ttl"`

	// RateLimitRPM is requests per minute per client IP (0 disables)
	RateLimitRPM int `mapstructure:"rate_limit_rpm"`

	LogLevel string `mapstructure:"log_level"`

	// LogFile enables a rotated JSON log file when set
	LogFile string `mapstructure:"log_file"`
}

// DataDir is where local state lives by default.
func DataDir() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crewclock"
	}
	return filepath.Join(home, ".crewclock")
}

// Default returns a Config with defaults applied.
func Default() *Config {
	dir := DataDir()
	return &Config{
		Store:           "sqlite:" + filepath.Join(dir, "crewclock.db"),
		QueueStore:      "sqlite:" + filepath.Join(dir, "queue.db"),
		Roster:          filepath.Join(dir, "roster.yaml"),
		GPSTimeout:      10 * time.Second,
		SyncInterval:    30 * time.Second,
		SyncMaxAttempts: 5,
		SyncTriggerRPS:  1,
		APIAddr:         ":8080",
		JWTTTL:          12 * time.Hour,
		RateLimitRPM:    300,
		LogLevel:        "info",
	}
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// ConfigFile is an explicit YAML config file. When empty,
	// $HOME/.crewclock.yaml is read if it exists.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the environment first
	// (default: .env, ignored when missing)
	EnvFile string
}

// Load builds the configuration from defaults, the config file, the dotenv
// file and CREWCLOCK_* environment variables, later sources winning.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	def := Default()
	v.SetDefault("store", def.Store)
	v.SetDefault("queue_store", def.QueueStore)
	v.SetDefault("roster", def.Roster)
	v.SetDefault("settings_file", def.SettingsFile)
	v.SetDefault("gps_timeout", def.GPSTimeout)
	v.SetDefault("sync_interval", def.SyncInterval)
	v.SetDefault("sync_max_attempts", def.SyncMaxAttempts)
	v.SetDefault("sync_trigger_rps", def.SyncTriggerRPS)
	v.SetDefault("api_addr", def.APIAddr)
	v.SetDefault("jwt_secret", def.JWTSecret)
	v.SetDefault("jwt_ttl", def.JWTTTL)
	v.SetDefault("rate_limit_rpm", def.RateLimitRPM)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", def.LogFile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".crewclock")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Store == "" {
		return ErrMissingStore
	}
	if c.QueueStore == "" {
		return ErrMissingQueueStore
	}
	if c.GPSTimeout <= 0 {
		return ErrInvalidGPSTimeout
	}
	if c.SyncInterval < time.Second {
		return ErrInvalidSyncInterval
	}
	if c.SyncMaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.SyncTriggerRPS <= 0 {
		return ErrInvalidTriggerRate
	}
	if c.JWTTTL <= 0 {
		return ErrInvalidJWTTTL
	}
	if c.RateLimitRPM < 0 {
		return ErrInvalidRateLimit
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}
