// Package config loads flowmig settings from flowmig.toml, a .env file and
// the process environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file searched for from the working directory up to
// the project root.
const FileName = "flowmig.toml"

// MemoryDatabase opens a private in-memory store.
const MemoryDatabase = ":memory:"

// Config holds every setting. File values are overridden by .env values,
// which are overridden by process environment variables; CLI flags apply on
// top of the result.
type Config struct {
	Database       string              `toml:"database"`
	DefinitionsDir string              `toml:"definitions_dir"`
	LogLevel       string              `toml:"log_level"`
	LogFormat      string              `toml:"log_format"`
	Batch          BatchConfig         `toml:"batch"`
	Authorization  AuthorizationConfig `toml:"authorization"`

	ConfigFilePath string `toml:"-"`
	DotenvPath     string `toml:"-"`
}

// BatchConfig tunes batch migrations.
type BatchConfig struct {
	MaxParallel int  `toml:"max_parallel"`
	StopOnError bool `toml:"stop_on_error"`
}

// AuthorizationConfig lists the allowed "source->target" definition id
// patterns. "*" allows every plan, as does omitting the key.
type AuthorizationConfig struct {
	Allowed []string `toml:"allowed"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Database:       "flowmig.db",
		DefinitionsDir: "definitions",
		LogLevel:       "info",
		LogFormat:      "text",
		Batch:          BatchConfig{MaxParallel: 4},
		Authorization:  AuthorizationConfig{Allowed: []string{"*"}},
	}
}

// Load searches startDir and its parents for flowmig.toml, stopping at a
// project root, and applies .env and environment overrides. Without a
// config file the defaults are used and .env is looked up in startDir.
func Load(startDir string) (*Config, error) {
	cfg := Default()
	baseDir := startDir

	if path, ok := find(startDir); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		// A listed allowed array replaces the default rather than extending it.
		cfg.Authorization.Allowed = nil
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			var missing *toml.StrictMissingError
			if errors.As(err, &missing) {
				return nil, fmt.Errorf("parse %s: unknown keys:\n%s", path, missing.String())
			}
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if cfg.Authorization.Allowed == nil {
			cfg.Authorization.Allowed = Default().Authorization.Allowed
		}
		cfg.ConfigFilePath = path
		baseDir = filepath.Dir(path)
		cfg.Database = resolvePath(baseDir, cfg.Database)
		cfg.DefinitionsDir = resolvePath(baseDir, cfg.DefinitionsDir)
	}

	if err := applyEnvironment(cfg, baseDir, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// find returns the first flowmig.toml at or above dir.
func find(dir string) (string, bool) {
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
		if isProjectRoot(dir) {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

func resolvePath(baseDir, p string) string {
	if p == "" || p == MemoryDatabase || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ConfigDir returns the directory holding the config file, or "" when none
// was found.
func (c *Config) ConfigDir() string {
	if c.ConfigFilePath == "" {
		return ""
	}
	return filepath.Dir(c.ConfigFilePath)
}

// Validate checks enumerated values and limits.
func (c *Config) Validate() error {
	var problems []string
	if _, err := ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q: expected text or json", c.LogFormat))
	}
	if c.Batch.MaxParallel < 0 {
		problems = append(problems, fmt.Sprintf("batch.max_parallel %d: must not be negative", c.Batch.MaxParallel))
	}
	if strings.TrimSpace(c.Database) == "" {
		problems = append(problems, "database is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level %q: expected debug, info, warn or error", s)
}
