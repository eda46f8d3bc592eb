// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/kerygma/config.yaml",
	"/etc/kerygma/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces kerygma environment variables.
const envPrefix = "KERYGMA_"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in defaults
//  2. Config file: optional YAML file (if found)
//  3. Environment variables: KERYGMA_* overrides any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// KERYGMA_ENGINE_DEFAULT_K -> engine.default_k
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file. The CONFIG_PATH env var wins,
// then the default paths in order. Returns empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sectionNames are the top-level config sections. The env transform needs
// them to split KERYGMA_ENGINE_DEFAULT_K into "engine" + "default_k" since
// underscores appear both as section separators and inside key names.
var sectionNames = []string{
	"logging", "engine", "encoder", "artifact", "store", "cache", "worker",
}

// envTransformFunc maps a KERYGMA_ environment variable to a koanf path.
// The first underscore-delimited token selects the section; the rest form
// the key with underscores preserved:
//
//	KERYGMA_LOGGING_LEVEL       -> logging.level
//	KERYGMA_ENGINE_DEFAULT_K    -> engine.default_k
//	KERYGMA_ENCODER_BASE_URL    -> encoder.base_url
func envTransformFunc(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sectionNames {
		if rest, ok := strings.CutPrefix(s, section+"_"); ok {
			return section + "." + rest
		}
	}
	return s
}
