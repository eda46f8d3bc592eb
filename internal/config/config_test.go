// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.Engine.Alpha != 0.4 {
		t.Errorf("expected default alpha 0.4, got %v", cfg.Engine.Alpha)
	}
	if cfg.Engine.RefreshWindow != 24*time.Hour {
		t.Errorf("expected default refresh window 24h, got %v", cfg.Engine.RefreshWindow)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "factor primary path passes",
			mutate:  func(c *Config) { c.Engine.PrimaryPath = "factor" },
			wantErr: false,
		},
		{
			name:    "unknown primary path fails",
			mutate:  func(c *Config) { c.Engine.PrimaryPath = "hybrid" },
			wantErr: true,
		},
		{
			name:    "alpha above one fails",
			mutate:  func(c *Config) { c.Engine.Alpha = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative alpha fails",
			mutate:  func(c *Config) { c.Engine.Alpha = -0.1 },
			wantErr: true,
		},
		{
			name:    "max_k below default_k fails",
			mutate:  func(c *Config) { c.Engine.MaxK = c.Engine.DefaultK - 1 },
			wantErr: true,
		},
		{
			name:    "empty encoder base URL fails",
			mutate:  func(c *Config) { c.Encoder.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "zero encoder timeout fails",
			mutate:  func(c *Config) { c.Encoder.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "empty artifact path fails",
			mutate:  func(c *Config) { c.Artifact.Path = "" },
			wantErr: true,
		},
		{
			name:    "zero sweep interval fails",
			mutate:  func(c *Config) { c.Worker.SweepInterval = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KERYGMA_LOGGING_LEVEL", "logging.level"},
		{"KERYGMA_ENGINE_DEFAULT_K", "engine.default_k"},
		{"KERYGMA_ENGINE_DISLIKE_WEIGHT", "engine.dislike_weight"},
		{"KERYGMA_ENCODER_BASE_URL", "encoder.base_url"},
		{"KERYGMA_ENCODER_BREAKER_MAX_FAILURES", "encoder.breaker_max_failures"},
		{"KERYGMA_WORKER_SWEEP_INTERVAL", "worker.sweep_interval"},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := `
engine:
  default_k: 7
  primary_path: factor
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("KERYGMA_ENGINE_DEFAULT_K", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// env beats file
	if cfg.Engine.DefaultK != 9 {
		t.Errorf("expected env override default_k=9, got %d", cfg.Engine.DefaultK)
	}
	// file beats defaults
	if cfg.Engine.PrimaryPath != "factor" {
		t.Errorf("expected file override primary_path=factor, got %q", cfg.Engine.PrimaryPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected file override logging.level=debug, got %q", cfg.Logging.Level)
	}
	// untouched settings keep defaults
	if cfg.Engine.Alpha != 0.4 {
		t.Errorf("expected default alpha 0.4, got %v", cfg.Engine.Alpha)
	}
}
