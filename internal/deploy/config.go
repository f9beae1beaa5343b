// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"fmt"
	"time"

	"github.com/tomtom215/recdeploy/internal/hosting"
)

// VerifyConfig bounds the read-back loop after a model swap
type VerifyConfig struct {
	// Wait before the first read-back. Swaps usually take over a minute.
	InitialDelay time.Duration

	// Wait between read-backs, multiplied after each one up to MaxInterval
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64

	// Total time allowed from the update request to a verified swap
	Timeout time.Duration

	// Per read-back request timeout
	ReadTimeout time.Duration
}

// DefaultVerifyConfig returns the defaults used by deployctl
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		InitialDelay: 90 * time.Second,
		Interval:     10 * time.Second,
		MaxInterval:  time.Minute,
		Multiplier:   2,
		Timeout:      10 * time.Minute,
		ReadTimeout:  30 * time.Second,
	}
}

// Validate checks the loop bounds
func (c VerifyConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("verify interval must be positive")
	}
	if c.MaxInterval < c.Interval {
		return fmt.Errorf("verify max interval %s is below interval %s", c.MaxInterval, c.Interval)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("verify multiplier must be >= 1, got %v", c.Multiplier)
	}
	if c.Timeout < c.InitialDelay {
		return fmt.Errorf("verify timeout %s is shorter than the initial delay %s", c.Timeout, c.InitialDelay)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("verify read timeout must be positive")
	}
	return nil
}

// Config configures an Orchestrator
type Config struct {
	ProjectName string

	// Compute used for test deployments unless the request overrides it
	Compute hosting.ComputeConfig

	Verify VerifyConfig

	// Take a backup of the live artifacts before staging a new test
	BackupBeforeStage bool

	// Label for state save metrics
	StateBackend string
}

// DefaultConfig returns a Config with default compute and verification
func DefaultConfig() Config {
	return Config{
		ProjectName:       "Recommender",
		Compute:           hosting.DefaultComputeConfig(),
		Verify:            DefaultVerifyConfig(),
		BackupBeforeStage: true,
		StateBackend:      "file",
	}
}
