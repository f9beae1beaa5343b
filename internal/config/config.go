// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package config

import (
	"path/filepath"
	"time"
)

// Config holds all deployctl configuration.
//
// Configuration Categories:
//
//  1. Deployment:
//     - Project: Display name prefix for models and deployments
//     - Hosting: Gateway connection, rate limits, compute and circuit breaker
//     - Promotion: Read-back verification after an in-place model swap
//
//  2. Local storage:
//     - Paths: Backup root and the live artifact/results directories
//     - State: Deployment state backend (JSON file or BadgerDB)
//     - Backup: Retention policy applied by "backups prune"
//
//  3. Observability:
//     - Events: Lifecycle event publishing (none, in-process channel, NATS)
//     - Logging: Log level and output format
//     - Metrics: Prometheus listener and Pushgateway
type Config struct {
	Project   ProjectConfig   `koanf:"project"`
	Paths     PathsConfig     `koanf:"paths"`
	State     StateConfig     `koanf:"state"`
	Hosting   HostingConfig   `koanf:"hosting"`
	Promotion PromotionConfig `koanf:"promotion"`
	Backup    BackupConfig    `koanf:"backup"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ProjectConfig names the recommender being deployed
type ProjectConfig struct {
	Name string `koanf:"name" validate:"required"`
}

// PathsConfig holds the local directories deployctl works with
type PathsConfig struct {
	// BackupRoot holds backups and, for the file backend, the state file
	BackupRoot string `koanf:"backup_root" validate:"required"`

	// Live directories: the model and metrics currently in production.
	// Backups capture them and promotion installs into them.
	ArtifactDir string `koanf:"artifact_dir" validate:"required"`
	ResultsDir  string `koanf:"results_dir" validate:"required"`

	// Training output staged by default, kept apart from the live directories
	TrainingArtifactDir string `koanf:"training_artifact_dir" validate:"required"`
	TrainingResultsDir  string `koanf:"training_results_dir"`
}

// StateConfig selects the deployment state backend
type StateConfig struct {
	Backend string `koanf:"backend" validate:"oneof=file badger"`

	// BadgerDir defaults to <backup_root>/state.badger
	BadgerDir string `koanf:"badger_dir"`
}

// HostingConfig configures the model hosting gateway client
type HostingConfig struct {
	BaseURL string `koanf:"base_url" validate:"omitempty,http_url"`
	Token   string `koanf:"token"`

	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit float64       `koanf:"rate_limit" validate:"gt=0"`
	Burst     int           `koanf:"burst" validate:"min=1"`

	// Polling while a new deployment provisions
	ProvisionTimeout time.Duration `koanf:"provision_timeout" validate:"gt=0"`
	PollInterval     time.Duration `koanf:"poll_interval" validate:"gt=0"`

	Compute        ComputeConfig        `koanf:"compute"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// ComputeConfig sizes test deployments
type ComputeConfig struct {
	Shape    string `koanf:"shape" validate:"required"`
	OCPUs    int    `koanf:"ocpus" validate:"min=1"`
	MemoryGB int    `koanf:"memory_gb" validate:"min=1"`
}

// CircuitBreakerConfig guards the hosting client
type CircuitBreakerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	MaxRequests         uint32        `koanf:"max_requests" validate:"min=1"`
	Interval            time.Duration `koanf:"interval"`
	Timeout             time.Duration `koanf:"timeout" validate:"gt=0"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures" validate:"min=1"`
}

// PromotionConfig bounds verification of an in-place promotion
type PromotionConfig struct {
	InitialDelay time.Duration `koanf:"initial_delay" validate:"min=0"`
	Interval     time.Duration `koanf:"interval" validate:"gt=0"`
	MaxInterval  time.Duration `koanf:"max_interval" validate:"gt=0"`
	Multiplier   float64       `koanf:"multiplier" validate:"gte=1"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`

	// Back up live artifacts before staging a new test deployment
	BackupBeforeStage bool `koanf:"backup_before_stage"`
}

// BackupConfig is the retention policy for "backups prune". Backups are
// never deleted automatically.
type BackupConfig struct {
	MinCount             int  `koanf:"min_count" validate:"min=0"`
	MaxCount             int  `koanf:"max_count" validate:"min=0"`
	MaxAgeDays           int  `koanf:"max_age_days" validate:"min=0"`
	KeepLatestPerVersion bool `koanf:"keep_latest_per_version"`
}

// EventsConfig configures lifecycle event publishing
type EventsConfig struct {
	// none, channel (in-process, for debugging) or nats
	Backend string `koanf:"backend" validate:"oneof=none channel nats"`

	NATSURL   string `koanf:"nats_url" validate:"required_if=Backend nats"`
	Topic     string `koanf:"topic" validate:"required"`
	JetStream bool   `koanf:"jetstream"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// MetricsConfig controls how metrics leave the process. Both are optional.
type MetricsConfig struct {
	// Serve /metrics on this address while a command runs, e.g. ":9108"
	Addr string `koanf:"addr"`

	// Push metrics to a Prometheus Pushgateway when a command finishes
	PushgatewayURL string `koanf:"pushgateway_url" validate:"omitempty,http_url"`
	Job            string `koanf:"job"`
}

// BadgerDir returns the badger directory, defaulting under the backup root
func (c *Config) BadgerDir() string {
	if c.State.BadgerDir != "" {
		return c.State.BadgerDir
	}
	return filepath.Join(c.Paths.BackupRoot, "state.badger")
}

// HostingConfigured reports whether remote operations can run
func (c *Config) HostingConfigured() bool {
	return c.Hosting.BaseURL != ""
}
