// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package models

import "time"

// BackupMetadata is the metadata.json record written into every backup directory.
type BackupMetadata struct {
	ID                   string            `json:"id,omitempty"`
	Version              *int              `json:"version"`
	Timestamp            string            `json:"timestamp"`
	BackupDate           time.Time         `json:"backup_date"`
	ProductionDeployment *DeploymentRecord `json:"production_deployment"`
	ProjectName          string            `json:"project_name"`

	ArtifactIncluded bool         `json:"artifact_included"`
	ResultsIncluded  bool         `json:"results_included"`
	Files            []BackupFile `json:"files,omitempty"`

	// BackupPath is filled in when listing and is not persisted
	BackupPath string `json:"-"`
}

// HasVersion reports whether the backup was tagged with version v.
func (m *BackupMetadata) HasVersion(v int) bool {
	return m.Version != nil && *m.Version == v
}

// BackupFile is a single file captured in a backup.
type BackupFile struct {
	// Path relative to the backup directory, slash separated
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}
