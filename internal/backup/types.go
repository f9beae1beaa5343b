// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"errors"
	"time"

	"github.com/tomtom215/recdeploy/internal/models"
)

// Names inside a backup directory
const (
	ArtifactDirName  = "recommender_model_artifact"
	ResultsDirName   = "results"
	MetadataFileName = "metadata.json"

	// TimestampLayout formats the timestamp part of backup names
	TimestampLayout = "20060102_150405"

	stagingPrefix = ".tmp-"

	// Hidden so listing and retention never see staged candidates
	candidatesDirName = ".candidates"
)

var (
	// ErrBackupNotFound is returned when no backup matches the request
	ErrBackupNotFound = errors.New("backup not found")

	// ErrBackupInvalid is returned when a backup fails integrity validation
	ErrBackupInvalid = errors.New("backup failed validation")

	// ErrCandidateNotFound is returned when no artifacts were kept for a version
	ErrCandidateNotFound = errors.New("no staged artifacts for version")

	// ErrCandidateIsLive is returned when a model is staged from a live directory
	ErrCandidateIsLive = errors.New("staged model must not come from a live directory")
)

// RestoreOptions controls RestoreFromBackup
type RestoreOptions struct {
	// Skip checksum validation before restoring
	Force bool

	// Back up the live trees before replacing them
	CreatePreRestoreBackup bool

	// Version tag and production snapshot for the safety backup
	PreRestoreVersion    *int
	PreRestoreProduction *models.DeploymentRecord
}

// RestoreResult describes a completed restore
type RestoreResult struct {
	BackupPath string        `json:"backup_path"`
	Version    *int          `json:"version"`
	Restored   []string      `json:"restored"`
	Warnings   []string      `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration"`

	// Safety backup of the replaced trees, "" when none was taken
	PreRestoreBackup string `json:"pre_restore_backup,omitempty"`
}

// ValidationResult holds the outcome of ValidateBackup
type ValidationResult struct {
	Valid              bool     `json:"valid"`
	FilesChecked       int      `json:"files_checked"`
	MissingFiles       []string `json:"missing_files,omitempty"`
	ChecksumMismatches []string `json:"checksum_mismatches,omitempty"`
	Errors             []string `json:"errors,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

// RetentionResult reports what ApplyRetention removed
type RetentionResult struct {
	Deleted []string `json:"deleted"`
	Kept    int      `json:"kept"`
}
