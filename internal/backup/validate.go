// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"fmt"
	"path/filepath"

	"github.com/tomtom215/recdeploy/internal/models"
)

// ValidateBackup recomputes every recorded checksum. Problems are collected
// in the result; the error is only for a request that cannot be checked.
func (m *Manager) ValidateBackup(meta *models.BackupMetadata) (*ValidationResult, error) {
	if meta == nil || meta.BackupPath == "" {
		return nil, fmt.Errorf("%w: backup has no path", ErrBackupNotFound)
	}

	result := &ValidationResult{Valid: true}

	if !exists(meta.BackupPath) {
		result.Valid = false
		result.Errors = append(result.Errors, "backup directory does not exist")
		return result, nil
	}

	if meta.ArtifactIncluded && !exists(filepath.Join(meta.BackupPath, ArtifactDirName)) {
		result.Valid = false
		result.Errors = append(result.Errors, ArtifactDirName+" recorded but missing")
	}
	if meta.ResultsIncluded && !exists(filepath.Join(meta.BackupPath, ResultsDirName)) {
		result.Valid = false
		result.Errors = append(result.Errors, ResultsDirName+" recorded but missing")
	}

	if len(meta.Files) == 0 {
		result.Warnings = append(result.Warnings, "no file manifest in metadata, checksums not verified")
		return result, nil
	}

	for _, f := range meta.Files {
		p := filepath.Join(meta.BackupPath, filepath.FromSlash(f.Path))
		result.FilesChecked++

		sum, err := fileChecksum(p)
		if err != nil {
			result.Valid = false
			result.MissingFiles = append(result.MissingFiles, f.Path)
			continue
		}
		if sum != f.Checksum {
			result.Valid = false
			result.ChecksumMismatches = append(result.ChecksumMismatches, f.Path)
		}
	}

	if len(result.MissingFiles) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d file(s) missing", len(result.MissingFiles)))
	}
	if len(result.ChecksumMismatches) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d checksum mismatch(es), backup may be corrupted", len(result.ChecksumMismatches)))
	}
	return result, nil
}
