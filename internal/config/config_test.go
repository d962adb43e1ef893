package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME at an empty directory so no user config is read.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CREWCLOCK_HOME", filepath.Join(dir, "data"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := "sqlite:" + filepath.Join(dir, "data", "crewclock.db"); cfg.Store != want {
		t.Errorf("Store = %q, want %q", cfg.Store, want)
	}
	if cfg.GPSTimeout != 10*time.Second {
		t.Errorf("GPSTimeout = %v, want 10s", cfg.GPSTimeout)
	}
	if cfg.SyncMaxAttempts != 5 {
		t.Errorf("SyncMaxAttempts = %d, want 5", cfg.SyncMaxAttempts)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	file := filepath.Join(dir, "crewclock.yaml")
	yaml := "store: redis://localhost:6379/0\ngps_timeout: 5s\napi_addr: \":9000\"\nlog_level: DEBUG\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("CREWCLOCK_JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CREWCLOCK_JWT_SECRET") })
	t.Setenv("CREWCLOCK_API_ADDR", ":7000")

	cfg, err := Load(LoadOptions{ConfigFile: file, EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"store from file", cfg.Store, "redis://localhost:6379/0"},
		{"gps timeout from file", cfg.GPSTimeout, 5 * time.Second},
		{"env beats file", cfg.APIAddr, ":7000"},
		{"dotenv", cfg.JWTSecret, "from-dotenv"},
		{"level lowered", cfg.LogLevel, "debug"},
		{"default kept", cfg.SyncInterval, 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(dir, "nope.yaml"), EnvFile: filepath.Join(dir, "x.env")})
	if err == nil {
		t.Error("Load() with a missing explicit config file should fail")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := isolate(t)
	t.Setenv("CREWCLOCK_SYNC_MAX_ATTEMPTS", "0")
	_, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "x.env")})
	if !errors.Is(err, ErrInvalidMaxAttempts) {
		t.Errorf("Load() error = %v, want ErrInvalidMaxAttempts", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"no store", func(c *Config) { c.Store = "" }, ErrMissingStore},
		{"no queue store", func(c *Config) { c.QueueStore = "" }, ErrMissingQueueStore},
		{"zero gps timeout", func(c *Config) { c.GPSTimeout = 0 }, ErrInvalidGPSTimeout},
		{"fast sync", func(c *Config) { c.SyncInterval = 100 * time.Millisecond }, ErrInvalidSyncInterval},
		{"zero trigger rate", func(c *Config) { c.SyncTriggerRPS = 0 }, ErrInvalidTriggerRate},
		{"zero ttl", func(c *Config) { c.JWTTTL = 0 }, ErrInvalidJWTTTL},
		{"negative rate limit", func(c *Config) { c.RateLimitRPM = -1 }, ErrInvalidRateLimit},
		{"disabled rate limit", func(c *Config) { c.RateLimitRPM = 0 }, nil},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
