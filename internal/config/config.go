// Package config holds all cachescope configuration.
// Config is read from <project>/.cachescope/config.yaml, then overridden by
// CACHESCOPE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cachescope configuration.
type Config struct {
	Scan     ScanConfig     `yaml:"scan"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Report   ReportConfig   `yaml:"report"`
	Store    StoreConfig    `yaml:"store"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ScanConfig controls the project scanner.
type ScanConfig struct {
	Workers        int      `yaml:"workers"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	MaxFileBytes   int64    `yaml:"max_file_bytes"`
}

// AnalysisConfig controls rule evaluation.
type AnalysisConfig struct {
	// Rules maps rule code to enabled; codes not listed stay enabled.
	Rules map[string]bool `yaml:"rules"`
	// MinSeverity filters findings below this severity from output.
	MinSeverity string `yaml:"min_severity"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	Format string `yaml:"format"` // text or json
}

// StoreConfig controls the scan history database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig controls the filesystem watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DebounceDuration parses the debounce setting, defaulting to 500ms.
func (w WatchConfig) DebounceDuration() time.Duration {
	if w.Debounce == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(w.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			MaxFileBytes: 2 * 1024 * 1024,
		},
		Analysis: AnalysisConfig{
			MinSeverity: "info",
		},
		Report: ReportConfig{
			Format: "text",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".cachescope", "cachescope.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config for a project root. explicit overrides the default
// location when non-empty. A missing file yields defaults, not an error.
func Load(root, explicit string) (Config, error) {
	cfg := Default()

	path := explicit
	if path == "" {
		path = filepath.Join(root, ".cachescope", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && explicit == "" {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values with CACHESCOPE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("CACHESCOPE_SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scan.Workers = n
		}
	}
	if v := os.Getenv("CACHESCOPE_MAX_FILE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Scan.MaxFileBytes = n
		}
	}
	if v := os.Getenv("CACHESCOPE_MIN_SEVERITY"); v != "" {
		c.Analysis.MinSeverity = v
	}
	if v := os.Getenv("CACHESCOPE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("CACHESCOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CACHESCOPE_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// DatabasePath resolves the store path against the project root.
func (c Config) DatabasePath(root string) string {
	if filepath.IsAbs(c.Store.DatabasePath) {
		return c.Store.DatabasePath
	}
	return filepath.Join(root, c.Store.DatabasePath)
}
