package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	assert.Empty(t, cfg.ServerAddr)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Config{DataDir: "/tmp/ql"}
	assert.Equal(t, filepath.Join("/tmp/ql", "quietlog.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/tmp/ql", "keys.json"), cfg.KeyFilePath())
}

func TestParseJsonOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server_addr": "http://sync.local:8080",
		"sync_interval": "30s"
	}`), 0o600))

	oldArgs := os.Args
	os.Args = []string{"cli", "-c", path}
	defer func() { os.Args = oldArgs }()

	var cfg Config
	cfg.LoadDefaults()
	parseJson(&cfg)

	assert.Equal(t, "http://sync.local:8080", cfg.ServerAddr)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	// untouched fields keep their defaults
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestParseFlagsOverrideJson(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"cli", "-a", "http://flag.local", "-i", "60"}
	defer func() { os.Args = oldArgs }()

	var cfg Config
	cfg.LoadDefaults()
	parseFlags(&cfg)

	assert.Equal(t, "http://flag.local", cfg.ServerAddr)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
}
