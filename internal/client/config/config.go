package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the quietlog CLI.
//
// Units: SyncInterval and RequestTimeout are time.Durations.
type Config struct {
	// ServerAddr is the base URL of the replica server, e.g.
	// "http://127.0.0.1:8080". Empty disables sync.
	ServerAddr string

	// DataDir holds the local database and the key file.
	DataDir string

	// SyncInterval is the period between background sync cycles.
	SyncInterval time.Duration

	// RequestTimeout bounds a single replica HTTP request.
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = ""
	c.DataDir = defaultDataDir()
	c.SyncInterval = 5 * time.Minute
	c.RequestTimeout = 15 * time.Second
}

// DatabasePath returns the SQLite file location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "quietlog.db")
}

// KeyFilePath returns the encrypted key file location under DataDir.
func (c *Config) KeyFilePath() string {
	return filepath.Join(c.DataDir, "keys.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quietlog"
	}
	return filepath.Join(home, ".quietlog")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
