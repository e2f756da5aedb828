package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// DefaultBaseDir is the ledger directory used when none is configured,
// relative to the user's home directory.
const DefaultBaseDir = ".aep"

// Config holds all application configuration.
type Config struct {
	LedgerBasePath string        `env:"AEP_LEDGER_BASE_PATH"`
	LedgerName     string        `env:"AEP_LEDGER_NAME" envDefault:"default"`
	MaxFileSize    int64         `env:"AEP_MAX_FILE_SIZE_BYTES" envDefault:"1048576"` // 1MiB
	LockTimeout    time.Duration `env:"AEP_LOCK_TIMEOUT" envDefault:"5s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.LedgerBasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory for default ledger path: %w", err)
		}
		cfg.LedgerBasePath = filepath.Join(home, DefaultBaseDir)
	}
	cfg.LedgerBasePath = expandHome(cfg.LedgerBasePath)

	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("AEP_MAX_FILE_SIZE_BYTES must be positive, got %d", cfg.MaxFileSize)
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("AEP_LOCK_TIMEOUT must be positive, got %s", cfg.LockTimeout)
	}

	return cfg, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
