// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds backup locations
type Config struct {
	// Directory holding one subdirectory per backup (and the state file)
	BackupRoot string

	// Live trees captured by every backup
	ArtifactDir string
	ResultsDir  string

	// Recorded in metadata.json
	ProjectName string

	// Retention applied by ApplyRetention
	Retention RetentionPolicy
}

// RetentionPolicy defines which backups survive pruning
type RetentionPolicy struct {
	// Minimum backups to always keep
	MinCount int

	// Maximum backups to keep (0 = unlimited)
	MaxCount int

	// Delete backups older than this (0 = never by age)
	MaxAgeDays int

	// Never delete the newest backup of each version
	KeepLatestPerVersion bool
}

// DefaultRetentionPolicy returns a conservative policy
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MinCount:             5,
		MaxCount:             50,
		MaxAgeDays:           180,
		KeepLatestPerVersion: true,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BackupRoot == "" {
		return fmt.Errorf("backup root is required")
	}
	if c.ArtifactDir == "" && c.ResultsDir == "" {
		return fmt.Errorf("at least one of artifact dir and results dir is required")
	}
	root, err := filepath.Abs(c.BackupRoot)
	if err != nil {
		return fmt.Errorf("invalid backup root: %w", err)
	}
	for _, live := range []string{c.ArtifactDir, c.ResultsDir} {
		if live == "" {
			continue
		}
		abs, err := filepath.Abs(live)
		if err != nil {
			return fmt.Errorf("invalid live directory %s: %w", live, err)
		}
		if abs == root || isWithin(root, abs) || isWithin(abs, root) {
			return fmt.Errorf("live directory %s overlaps backup root %s", live, c.BackupRoot)
		}
	}
	return c.Retention.validate()
}

func (p RetentionPolicy) validate() error {
	if p.MinCount < 0 || p.MaxCount < 0 || p.MaxAgeDays < 0 {
		return fmt.Errorf("retention values must not be negative")
	}
	if p.MaxCount > 0 && p.MinCount > p.MaxCount {
		return fmt.Errorf("retention min count %d exceeds max count %d", p.MinCount, p.MaxCount)
	}
	return nil
}

// EnsureBackupDir creates the backup root if it doesn't exist
func (c *Config) EnsureBackupDir() error {
	if err := os.MkdirAll(c.BackupRoot, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	return nil
}

// isWithin reports whether path is strictly inside dir
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
