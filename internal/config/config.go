// Package config loads the receipt service's process configuration from
// environment variables, following the Config struct shape and
// Validate/DefaultConfig idiom of
// wyf-ACCEPT-eth2030/pkg/node.Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all configuration for the receipt service.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// ModelsDir is the base directory scanned for shipped models.
	ModelsDir string

	// UploadedModelsDir is the directory new models are written to and
	// scanned from.
	UploadedModelsDir string

	// DatabasePath is the SQLite file path for the durable receipt store.
	DatabasePath string

	// BaseURL is prefixed onto receipt_url fields in responses.
	BaseURL string

	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string

	// CORSOrigins is the optional Access-Control-Allow-Origin value, sent
	// verbatim on the CORS-wrapped routes; a comma-separated list is not
	// split or matched against the request's Origin. Empty means no CORS
	// headers are sent.
	CORSOrigins string
}

// DefaultConfig returns a Config with the same defaults as
// original_source/src/config.rs::Config::from_env.
func DefaultConfig() Config {
	port := 3000
	return Config{
		Port:              port,
		ModelsDir:         "./models",
		UploadedModelsDir: "./data/models",
		DatabasePath:      "./data/receipts.db",
		BaseURL:           fmt.Sprintf("http://localhost:%d", port),
		LogLevel:          "info",
		CORSOrigins:       "",
	}
}

// FromEnv builds a Config by overlaying environment variables onto
// DefaultConfig. PORT, MODELS_DIR, UPLOADED_MODELS_DIR, DATABASE_PATH,
// BASE_URL, LOG_LEVEL, and CORS_ORIGINS are recognized, matching
// original_source/src/config.rs.
func FromEnv() (Config, error) {
	c := DefaultConfig()

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Port = p
		c.BaseURL = fmt.Sprintf("http://localhost:%d", p)
	}
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("UPLOADED_MODELS_DIR"); v != "" {
		c.UploadedModelsDir = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = v
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks configuration values for correctness. Unlike the
// original Rust implementation, which calls std::process::exit(1) when
// ModelsDir is missing, this Go port returns an error so the caller
// (cmd/zkreceiptd) controls process exit behavior.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Port)
	}
	if c.ModelsDir == "" {
		return errors.New("config: models_dir must not be empty")
	}
	if c.UploadedModelsDir == "" {
		return errors.New("config: uploaded_models_dir must not be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("config: database_path must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if _, err := os.Stat(c.ModelsDir); err != nil {
		return fmt.Errorf("config: models_dir %q does not exist: %w", c.ModelsDir, err)
	}
	return nil
}

// ResolveDatabaseDir ensures the parent directory of DatabasePath exists.
func (c *Config) ResolveDatabaseDir() error {
	dir := filepath.Dir(c.DatabasePath)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
