// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package config loads layered configuration for the recommendation engine:
// built-in defaults, then an optional YAML file, then KERYGMA_ environment
// variables. Precedence is ENV > File > Defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for all kerygma components.
type Config struct {
	Logging  LoggingConfig  `koanf:"logging"`
	Engine   EngineConfig   `koanf:"engine"`
	Encoder  EncoderConfig  `koanf:"encoder"`
	Artifact ArtifactConfig `koanf:"artifact"`
	Store    StoreConfig    `koanf:"store"`
	Cache    CacheConfig    `koanf:"cache"`
	Worker   WorkerConfig   `koanf:"worker"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// EngineConfig controls recommendation scoring behavior.
type EngineConfig struct {
	// PrimaryPath selects the preferred scoring path: "semantic" or "factor".
	PrimaryPath string `koanf:"primary_path"`

	// Alpha blends the trait preference vector into the behavior vector.
	// 0 means behavior only, 1 means traits only.
	Alpha float64 `koanf:"alpha"`

	// DislikeWeight scales the subtracted mean of disliked item vectors.
	DislikeWeight float64 `koanf:"dislike_weight"`

	// LikeThreshold is the minimum rating counted as a like.
	LikeThreshold float64 `koanf:"like_threshold"`

	// DefaultK is the number of recommendations returned when the request
	// does not specify a limit. MaxK caps any requested limit.
	DefaultK int `koanf:"default_k"`
	MaxK     int `koanf:"max_k"`

	// CacheTTL bounds how long a computed response is served from cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// RefreshWindow is how long a stored recommendation record stays fresh
	// before a new request triggers recomputation.
	RefreshWindow time.Duration `koanf:"refresh_window"`
}

// EncoderConfig controls the external text-encoder client.
type EncoderConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`

	// RateLimit is requests per second; Burst is the token bucket size.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`

	// Circuit breaker thresholds.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// ArtifactConfig locates the trained embedding artifact.
type ArtifactConfig struct {
	Path string `koanf:"path"`
}

// StoreConfig controls the DuckDB record store.
type StoreConfig struct {
	Path    string `koanf:"path"` // empty means in-memory
	Threads int    `koanf:"threads"`
}

// CacheConfig controls the on-disk embedding cache.
type CacheConfig struct {
	Dir string `koanf:"dir"`
}

// WorkerConfig controls the background feedback worker.
type WorkerConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Engine: EngineConfig{
			PrimaryPath:   "semantic",
			Alpha:         0.4,
			DislikeWeight: 0.5,
			LikeThreshold: 4.0,
			DefaultK:      10,
			MaxK:          50,
			CacheTTL:      5 * time.Minute,
			RefreshWindow: 24 * time.Hour,
		},
		Encoder: EncoderConfig{
			BaseURL:            "http://127.0.0.1:8080",
			Model:              "all-MiniLM-L6-v2",
			Timeout:            10 * time.Second,
			MaxRetries:         2,
			RateLimit:          10,
			Burst:              20,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Artifact: ArtifactConfig{
			Path: "/data/kerygma/model.bin",
		},
		Store: StoreConfig{
			Path:    "/data/kerygma/kerygma.duckdb",
			Threads: 0, // 0 = use runtime.NumCPU()
		},
		Cache: CacheConfig{
			Dir: "/data/kerygma/embedcache",
		},
		Worker: WorkerConfig{
			SweepInterval: 15 * time.Minute,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Engine.PrimaryPath {
	case "semantic", "factor":
	default:
		return fmt.Errorf("engine.primary_path must be \"semantic\" or \"factor\", got %q", c.Engine.PrimaryPath)
	}
	if c.Engine.Alpha < 0 || c.Engine.Alpha > 1 {
		return fmt.Errorf("engine.alpha must be in [0, 1], got %v", c.Engine.Alpha)
	}
	if c.Engine.DislikeWeight < 0 {
		return fmt.Errorf("engine.dislike_weight must be non-negative, got %v", c.Engine.DislikeWeight)
	}
	if c.Engine.DefaultK <= 0 {
		return fmt.Errorf("engine.default_k must be positive, got %d", c.Engine.DefaultK)
	}
	if c.Engine.MaxK < c.Engine.DefaultK {
		return fmt.Errorf("engine.max_k (%d) must be >= engine.default_k (%d)", c.Engine.MaxK, c.Engine.DefaultK)
	}
	if c.Engine.CacheTTL < 0 {
		return fmt.Errorf("engine.cache_ttl must be non-negative, got %v", c.Engine.CacheTTL)
	}
	if c.Engine.RefreshWindow <= 0 {
		return fmt.Errorf("engine.refresh_window must be positive, got %v", c.Engine.RefreshWindow)
	}
	if c.Encoder.BaseURL == "" {
		return fmt.Errorf("encoder.base_url must not be empty")
	}
	if c.Encoder.Timeout <= 0 {
		return fmt.Errorf("encoder.timeout must be positive, got %v", c.Encoder.Timeout)
	}
	if c.Encoder.MaxRetries < 0 {
		return fmt.Errorf("encoder.max_retries must be non-negative, got %d", c.Encoder.MaxRetries)
	}
	if c.Encoder.RateLimit <= 0 {
		return fmt.Errorf("encoder.rate_limit must be positive, got %v", c.Encoder.RateLimit)
	}
	if c.Encoder.Burst <= 0 {
		return fmt.Errorf("encoder.burst must be positive, got %d", c.Encoder.Burst)
	}
	if c.Artifact.Path == "" {
		return fmt.Errorf("artifact.path must not be empty")
	}
	if c.Worker.SweepInterval <= 0 {
		return fmt.Errorf("worker.sweep_interval must be positive, got %v", c.Worker.SweepInterval)
	}
	return nil
}
