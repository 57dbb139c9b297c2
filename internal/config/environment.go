package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvDatabase    = "FLOWMIG_DATABASE"
	EnvLogLevel    = "FLOWMIG_LOG_LEVEL"
	EnvMaxParallel = "FLOWMIG_MAX_PARALLEL"
)

// applyEnvironment overlays .env values from baseDir, then process
// environment values looked up with lookup.
func applyEnvironment(cfg *Config, baseDir string, lookup func(string) (string, bool)) error {
	values := map[string]string{}

	dotenv := filepath.Join(baseDir, ".env")
	if info, err := os.Stat(dotenv); err == nil && !info.IsDir() {
		read, err := godotenv.Read(dotenv)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", dotenv, err)
		}
		values = read
		cfg.DotenvPath = dotenv
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to access %s: %w", dotenv, err)
	}

	for _, key := range []string{EnvDatabase, EnvLogLevel, EnvMaxParallel} {
		if v, ok := lookup(key); ok && v != "" {
			values[key] = v
		}
	}

	if v := values[EnvDatabase]; v != "" {
		cfg.Database = v
	}
	if v := values[EnvLogLevel]; v != "" {
		cfg.LogLevel = v
	}
	if v := values[EnvMaxParallel]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvMaxParallel, v, err)
		}
		cfg.Batch.MaxParallel = n
	}
	return nil
}
