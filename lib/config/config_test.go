package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCurrentConfigDefaultsRoundTrip verifies that every key written by
// setDefaults() is read back by CurrentConfig().
func TestCurrentConfigDefaultsRoundTrip(t *testing.T) {
	viper.Reset()
	setDefaults()

	cfg := CurrentConfig()
	defaults := Defaults()

	assert.Equal(t, defaults.Route, cfg.Route)
	assert.Equal(t, defaults.Relays, cfg.Relays)
	assert.Equal(t, defaults.Mint, cfg.Mint)
	assert.Equal(t, defaults.NTP, cfg.NTP)
	assert.Equal(t, defaults.Directory, cfg.Directory)
	assert.Equal(t, defaults.Tracer, cfg.Tracer)
}

func TestCurrentConfigReadsFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("route:\n  base_interval: 2m\n  jitter: 30s\nmint:\n  url: https://mint.example\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	CfgFile = path
	defer func() { CfgFile = "" }()
	InitConfig()

	cfg := CurrentConfig()
	assert.Equal(t, 2*time.Minute, cfg.Route.BaseInterval)
	assert.Equal(t, 30*time.Second, cfg.Route.Jitter)
	assert.Equal(t, "https://mint.example", cfg.Mint.URL)
	// untouched keys keep their defaults
	assert.Equal(t, Defaults().Relays.Fallback, cfg.Relays.Fallback)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Defaults()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero base interval", func(c *Config) { c.Route.BaseInterval = 0 }},
		{"negative jitter", func(c *Config) { c.Route.Jitter = -time.Second }},
		{"no fallback relay", func(c *Config) { c.Relays.Fallback = nil }},
		{"zero publish timeout", func(c *Config) { c.Relays.PublishTimeout = 0 }},
		{"empty unit", func(c *Config) { c.Mint.Unit = "" }},
		{"zero history", func(c *Config) { c.Tracer.History = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
		})
	}
}

func TestWriteSecureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "nsec")
	require.NoError(t, WriteSecureFile(path, []byte("secret")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(SecureFilePermissions), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(SecureDirPermissions), dirInfo.Mode().Perm())
}
