// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"deployctl.yaml",
	"deployctl.yml",
	"/etc/recdeploy/deployctl.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "DEPLOYCTL_CONFIG"

// EnvPrefix is the prefix of every configuration environment variable
const EnvPrefix = "DEPLOYCTL_"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Name: "Recommender",
		},
		Paths: PathsConfig{
			BackupRoot:  "backups",
			ArtifactDir: "model_artifacts",
			ResultsDir:  "training_results",

			TrainingArtifactDir: "training_output/model_artifacts",
			TrainingResultsDir:  "training_output/training_results",
		},
		State: StateConfig{
			Backend: "file",
		},
		Hosting: HostingConfig{
			BaseURL:          "", // Required only by commands that call the gateway
			Timeout:          60 * time.Second,
			RateLimit:        5,
			Burst:            5,
			ProvisionTimeout: 30 * time.Minute,
			PollInterval:     15 * time.Second,
			Compute: ComputeConfig{
				Shape:    "VM.Standard.E4.Flex",
				OCPUs:    1,
				MemoryGB: 16,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:             true,
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Promotion: PromotionConfig{
			InitialDelay:      90 * time.Second,
			Interval:          10 * time.Second,
			MaxInterval:       time.Minute,
			Multiplier:        2,
			Timeout:           10 * time.Minute,
			ReadTimeout:       30 * time.Second,
			BackupBeforeStage: true,
		},
		Backup: BackupConfig{
			MinCount:             5,
			MaxCount:             50,
			MaxAgeDays:           180,
			KeepLatestPerVersion: true,
		},
		Events: EventsConfig{
			Backend: "none",
			NATSURL: "",
			Topic:   "deployments.lifecycle",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
		Metrics: MetricsConfig{
			Job: "deployctl",
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: path, or the first file found by findConfigFile when path is empty
//  3. Environment Variables: DEPLOYCTL_* overrides
//
// An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless explicit)
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
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

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
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

// envMappings maps lower-cased environment variable names to koanf paths
var envMappings = map[string]string{
	"deployctl_project_name": "project.name",

	// Paths
	"deployctl_backup_root":  "paths.backup_root",
	"deployctl_artifact_dir": "paths.artifact_dir",
	"deployctl_results_dir":  "paths.results_dir",

	"deployctl_training_artifact_dir": "paths.training_artifact_dir",
	"deployctl_training_results_dir":  "paths.training_results_dir",

	// State
	"deployctl_state_backend": "state.backend",
	"deployctl_badger_dir":    "state.badger_dir",

	// Hosting
	"deployctl_hosting_url":               "hosting.base_url",
	"deployctl_hosting_token":             "hosting.token",
	"deployctl_hosting_timeout":           "hosting.timeout",
	"deployctl_hosting_rate_limit":        "hosting.rate_limit",
	"deployctl_hosting_burst":             "hosting.burst",
	"deployctl_hosting_provision_timeout": "hosting.provision_timeout",
	"deployctl_hosting_poll_interval":     "hosting.poll_interval",
	"deployctl_compute_shape":             "hosting.compute.shape",
	"deployctl_compute_ocpus":             "hosting.compute.ocpus",
	"deployctl_compute_memory_gb":         "hosting.compute.memory_gb",
	"deployctl_breaker_enabled":           "hosting.circuit_breaker.enabled",
	"deployctl_breaker_failures":          "hosting.circuit_breaker.consecutive_failures",
	"deployctl_breaker_timeout":           "hosting.circuit_breaker.timeout",

	// Promotion
	"deployctl_verify_initial_delay": "promotion.initial_delay",
	"deployctl_verify_interval":      "promotion.interval",
	"deployctl_verify_max_interval":  "promotion.max_interval",
	"deployctl_verify_multiplier":    "promotion.multiplier",
	"deployctl_verify_timeout":       "promotion.timeout",
	"deployctl_verify_read_timeout":  "promotion.read_timeout",
	"deployctl_backup_before_stage":  "promotion.backup_before_stage",

	// Backup retention
	"deployctl_backup_min_count":    "backup.min_count",
	"deployctl_backup_max_count":    "backup.max_count",
	"deployctl_backup_max_age_days": "backup.max_age_days",

	// Events
	"deployctl_events_backend":   "events.backend",
	"deployctl_events_nats_url":  "events.nats_url",
	"deployctl_events_topic":     "events.topic",
	"deployctl_events_jetstream": "events.jetstream",

	// Logging
	"deployctl_log_level":  "logging.level",
	"deployctl_log_format": "logging.format",
	"deployctl_log_caller": "logging.caller",

	// Metrics
	"deployctl_metrics_addr":    "metrics.addr",
	"deployctl_pushgateway_url": "metrics.pushgateway_url",
	"deployctl_metrics_job":     "metrics.job",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - DEPLOYCTL_HOSTING_URL -> hosting.base_url
//   - DEPLOYCTL_VERIFY_TIMEOUT -> promotion.timeout
//   - DEPLOYCTL_LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	return ""
}
