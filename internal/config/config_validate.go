// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package config

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/tomtom215/recdeploy/internal/validation"
)

// Validate checks struct tags, then the cross-field rules
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validatePaths(); err != nil {
		return err
	}

	if err := c.validatePromotion(); err != nil {
		return err
	}

	if err := c.validateBackup(); err != nil {
		return err
	}

	return c.validateEvents()
}

// validatePaths keeps the training output apart from the live directories
func (c *Config) validatePaths() error {
	p := c.Paths
	live := map[string]string{
		filepath.Clean(p.ArtifactDir): "paths.artifact_dir",
		filepath.Clean(p.ResultsDir):  "paths.results_dir",
	}
	if name, ok := live[filepath.Clean(p.TrainingArtifactDir)]; ok {
		return fmt.Errorf("paths.training_artifact_dir must differ from %s", name)
	}
	if p.TrainingResultsDir != "" {
		if name, ok := live[filepath.Clean(p.TrainingResultsDir)]; ok {
			return fmt.Errorf("paths.training_results_dir must differ from %s", name)
		}
	}
	return nil
}

// validatePromotion checks the verification loop bounds
func (c *Config) validatePromotion() error {
	p := c.Promotion
	if p.MaxInterval < p.Interval {
		return fmt.Errorf("promotion.max_interval (%s) must not be below promotion.interval (%s)", p.MaxInterval, p.Interval)
	}
	if p.Timeout < p.InitialDelay {
		return fmt.Errorf("promotion.timeout (%s) must not be below promotion.initial_delay (%s)", p.Timeout, p.InitialDelay)
	}
	return nil
}

// validateBackup checks the retention policy
func (c *Config) validateBackup() error {
	b := c.Backup
	if b.MaxCount > 0 && b.MaxCount < b.MinCount {
		return fmt.Errorf("backup.max_count (%d) must not be below backup.min_count (%d)", b.MaxCount, b.MinCount)
	}
	return nil
}

// validateEvents checks the NATS URL when NATS is selected
func (c *Config) validateEvents() error {
	if c.Events.Backend != "nats" {
		return nil
	}
	if err := validateNATSURL(c.Events.NATSURL); err != nil {
		return fmt.Errorf("events.nats_url is invalid: %w", err)
	}
	return nil
}

// validateNATSURL validates a NATS server URL
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222, nats.example.com)")
	}

	return nil
}
