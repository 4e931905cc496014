// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the search-and-cache
// subsystem.
//
// Configuration comes from a TOML file layered over built-in defaults, with
// environment variable overrides applied last. The environment surface
// matches the deployment knobs of the hosting application: REDIS_* for the
// cache backend, BOOKINDEX_* for the index itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete subsystem configuration.
type Config struct {
	Index   IndexConfig   `toml:"index"`
	Cache   CacheConfig   `toml:"cache"`
	Rebuild RebuildConfig `toml:"rebuild"`
}

// IndexConfig configures the on-disk full-text index.
type IndexConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path"`
	// Tokenizer is the FTS5 tokenizer spec.
	Tokenizer string `toml:"tokenizer"`
	// BusyTimeoutMS is the SQLite busy timeout in milliseconds.
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
	// MaxResults caps the materialized result list per query.
	MaxResults int `toml:"max_results"`
}

// CacheConfig configures the Redis cache backend.
type CacheConfig struct {
	// Addr is the Redis host:port.
	Addr string `toml:"addr"`
	// Password is the optional Redis auth password.
	Password string `toml:"password"`
	// DB is the Redis logical database number.
	DB int `toml:"db"`
	// Enabled turns caching off entirely when false.
	Enabled bool `toml:"enabled"`
	// TTLSeconds is the default entry lifetime.
	TTLSeconds int `toml:"ttl_seconds"`
	// OpTimeoutMS bounds each cache round-trip in milliseconds.
	OpTimeoutMS int `toml:"op_timeout_ms"`
}

// RebuildConfig configures index rebuilds.
type RebuildConfig struct {
	// BatchSize is the number of records per rebuild transaction.
	BatchSize int `toml:"batch_size"`
}

// =============================================================================
// DEFAULTS & LOADING
// =============================================================================

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Path:          "data/search_index.db",
			Tokenizer:     "porter unicode61",
			BusyTimeoutMS: 5000,
			MaxResults:    1000,
		},
		Cache: CacheConfig{
			Addr:        "localhost:6379",
			Enabled:     true,
			TTLSeconds:  3600,
			OpTimeoutMS: 250,
		},
		Rebuild: RebuildConfig{
			BatchSize: 500,
		},
	}
}

// Load reads the TOML file at path (skipped if path is empty or absent),
// applies environment overrides and validates. Defaults fill anything left
// unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variables over the loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BOOKINDEX_DB_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("BOOKINDEX_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.MaxResults = n
		}
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		port := "6379"
		if p := os.Getenv("REDIS_PORT"); p != "" {
			port = p
		}
		c.Cache.Addr = v + ":" + port
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.DB = n
		}
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		c.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("BOOKINDEX_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLSeconds = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Index.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "index.path",
			Message: "index database path must not be empty",
		})
	}
	if c.Index.MaxResults <= 0 {
		errs = append(errs, ValidationError{
			Field:   "index.max_results",
			Message: "must be positive",
		})
	}
	if c.Index.BusyTimeoutMS < 0 {
		errs = append(errs, ValidationError{
			Field:   "index.busy_timeout_ms",
			Message: "must not be negative",
		})
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "cache.addr",
			Message: "address required while cache is enabled",
		})
	}
	if c.Cache.TTLSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl_seconds",
			Message: "must not be negative",
		})
	}
	if c.Rebuild.BatchSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rebuild.batch_size",
			Message: "must be positive",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// CacheTTL returns the default cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// BusyTimeout returns the SQLite busy timeout as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Index.BusyTimeoutMS) * time.Millisecond
}

// OpTimeout returns the per-call cache timeout as a duration.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.Cache.OpTimeoutMS) * time.Millisecond
}
