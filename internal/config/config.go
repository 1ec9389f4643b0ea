// Package config loads the client configuration: a YAML file with
// PUNCHCLOCK_* environment overrides. Loaded once at process start and
// passed explicitly into constructors; there is no package-level state, so
// tests can build isolated configs per case.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kbaldwin/punchclock/clock"
)

// Config is the process-wide configuration, immutable after Load.
type Config struct {
	// ServerURL is the remote base URL; the login command can override it.
	ServerURL string `yaml:"server_url"`
	// DataDir holds the bbolt database file.
	DataDir string `yaml:"data_dir"`
	// ListenAddr is where the local status server binds.
	ListenAddr string `yaml:"listen_addr"`
	// RequestsPerSecond caps outbound RPC calls. Zero disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// SyncInterval is the watch view's drift re-sync period.
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// Load reads path (missing file is fine) and applies env overrides and
// defaults. An unreadable or malformed file is an error: silently running
// on defaults when the user wrote a config is worse than failing.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:        "127.0.0.1:9185",
		RequestsPerSecond: 5,
		SyncInterval:      clock.SyncInterval,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DataDir = filepath.Join(home, ".punchclock")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env + defaults
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.ServerURL = getEnvString("PUNCHCLOCK_SERVER_URL", cfg.ServerURL)
	cfg.DataDir = getEnvString("PUNCHCLOCK_DATA_DIR", cfg.DataDir)
	cfg.ListenAddr = getEnvString("PUNCHCLOCK_LISTEN_ADDR", cfg.ListenAddr)
	cfg.RequestsPerSecond = getEnvFloat("PUNCHCLOCK_REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	cfg.SyncInterval = getEnvDuration("PUNCHCLOCK_SYNC_INTERVAL", cfg.SyncInterval)

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("no data directory: set data_dir or PUNCHCLOCK_DATA_DIR")
	}
	return cfg, nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".punchclock", "config.yaml")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
