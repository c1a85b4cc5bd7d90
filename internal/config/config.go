// Package config loads runtime settings from the environment, an optional
// .env file and an optional config file.
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

// EnvPrefix is prepended to every environment variable, e.g.
// STATEMENT_WORKERS.
const EnvPrefix = "STATEMENT"

// Config holds all application configuration
type Config struct {
	Port           string        `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	Workers        int           `mapstructure:"workers"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	MaxFiles       int           `mapstructure:"max_files"`
	ProfileDir     string        `mapstructure:"profile_dir"`
	PdftotextPath  string        `mapstructure:"pdftotext_path"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	Trace          bool          `mapstructure:"trace"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RowTolerance   float64       `mapstructure:"row_tolerance"`
}

var defaults = map[string]any{
	"port":            "8080",
	"log_level":       "info",
	"log_format":      "text",
	"workers":         4,
	"max_upload_mb":   32,
	"max_files":       20,
	"profile_dir":     "",
	"pdftotext_path":  "pdftotext",
	"extract_timeout": "60s",
	"trace":           false,
	"rate_limit":      5.0,
	"rate_burst":      10,
	"row_tolerance":   0.0,
}

// Load reads configuration. A .env file in the working directory is loaded
// first when present; path names an optional YAML, JSON or TOML file.
// Environment variables win over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Errors name the offending key.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port: must not be empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers: must be at least 1, got %d", c.Workers))
	}
	if c.MaxUploadMB < 1 {
		errs = append(errs, fmt.Errorf("max_upload_mb: must be at least 1, got %d", c.MaxUploadMB))
	}
	if c.MaxFiles < 1 {
		errs = append(errs, fmt.Errorf("max_files: must be at least 1, got %d", c.MaxFiles))
	}
	if c.ExtractTimeout < 0 {
		errs = append(errs, fmt.Errorf("extract_timeout: must not be negative, got %s", c.ExtractTimeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit: must not be negative, got %g", c.RateLimit))
	}
	if c.RowTolerance < 0 {
		errs = append(errs, fmt.Errorf("row_tolerance: must not be negative, got %g", c.RowTolerance))
	}
	return errors.Join(errs...)
}

// MaxUploadBytes is the per-file upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
