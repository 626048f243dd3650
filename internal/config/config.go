// Package config loads docsearch-mcp settings from defaults, an optional YAML
// file and DOCSEARCH_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned (wrapped) by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variable names
const (
	EnvArtifact      = "DOCSEARCH_ARTIFACT"
	EnvBackend       = "DOCSEARCH_BACKEND"
	EnvIndexDir      = "DOCSEARCH_INDEX_DIR"
	EnvBaseURL       = "DOCSEARCH_BASE_URL"
	EnvMaxResults    = "DOCSEARCH_MAX_RESULTS"
	EnvCacheSize     = "DOCSEARCH_CACHE_SIZE"
	EnvWatch         = "DOCSEARCH_WATCH"
	EnvWatchDebounce = "DOCSEARCH_WATCH_DEBOUNCE"
)

// Config holds server settings.
type Config struct {
	// Artifact is the search index file; empty uses the embedded artifact
	Artifact string `yaml:"artifact"`

	// Backend is "linear" (matcher scan) or "bleve" (full-text index)
	Backend string `yaml:"backend"`

	// IndexDir persists the bleve index; empty keeps it in memory
	IndexDir string `yaml:"index_dir"`

	// BaseURL is prefixed to fragment locations in results
	BaseURL string `yaml:"base_url"`

	MaxResults    int           `yaml:"max_results"`
	CacheSize     int           `yaml:"cache_size"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:       "linear",
		MaxResults:    10,
		CacheSize:     256,
		WatchDebounce: 500 * time.Millisecond,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	cfg, err := Resolve(path)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve is Load without validation, for callers that layer further
// overrides (command-line flags) and validate the final result themselves.
func Resolve(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadYAML decodes a YAML file over c. Keys present in the file win,
// including zero values such as "cache_size: 0" or "watch: false".
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	parsed := *c
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	*c = parsed
	return nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvArtifact); v != "" {
		c.Artifact = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Backend = strings.ToLower(v)
	}
	if v := getenv(EnvIndexDir); v != "" {
		c.IndexDir = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvMaxResults); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvMaxResults, v)
		}
		c.MaxResults = n
	}
	if v := getenv(EnvCacheSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvCacheSize, v)
		}
		c.CacheSize = n
	}
	if v := getenv(EnvWatch); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, EnvWatch, v)
		}
		c.Watch = b
	}
	if v := getenv(EnvWatchDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, EnvWatchDebounce, v)
		}
		c.WatchDebounce = d
	}
	return nil
}

// Validate checks field ranges and combinations.
func (c Config) Validate() error {
	switch c.Backend {
	case "linear", "bleve":
	default:
		return fmt.Errorf("%w: unknown backend %q (want linear or bleve)", ErrInvalidConfig, c.Backend)
	}
	if c.IndexDir != "" && c.Backend != "bleve" {
		return fmt.Errorf("%w: index_dir requires the bleve backend", ErrInvalidConfig)
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("%w: max_results must be positive, got %d", ErrInvalidConfig, c.MaxResults)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size must not be negative, got %d", ErrInvalidConfig, c.CacheSize)
	}
	if c.Watch && c.Artifact == "" {
		return fmt.Errorf("%w: watch requires an artifact path", ErrInvalidConfig)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("%w: watch_debounce must not be negative", ErrInvalidConfig)
	}
	return nil
}
