package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so a developer's .env
// does not leak in.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 20, cfg.MaxFiles)
	assert.Equal(t, "pdftotext", cfg.PdftotextPath)
	assert.Equal(t, 60*time.Second, cfg.ExtractTimeout)
	assert.Equal(t, 5.0, cfg.RateLimit)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nlog_format: json\nextract_timeout: 5s\n"), 0o600))
	t.Setenv("STATEMENT_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ExtractTimeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STATEMENT_PROFILE_DIR=/srv/profiles\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STATEMENT_PROFILE_DIR") })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/profiles", cfg.ProfileDir)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	inTempDir(t)

	_, err := Load("does-not-exist.yaml")

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: "8080", Workers: 1, MaxUploadMB: 1, MaxFiles: 1}

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"empty port", func(c *Config) { c.Port = " " }, "port"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"no upload size", func(c *Config) { c.MaxUploadMB = 0 }, "max_upload_mb"},
		{"no files", func(c *Config) { c.MaxFiles = 0 }, "max_files"},
		{"negative tolerance", func(c *Config) { c.RowTolerance = -1 }, "row_tolerance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}

	assert.NoError(t, valid.Validate())
}
