// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
	"github.com/tomtom215/recdeploy/internal/models"
)

// ListBackups returns every backup under the root, oldest first. Directories
// without metadata are ignored; unreadable metadata is logged and skipped.
func (m *Manager) ListBackups() ([]*models.BackupMetadata, error) {
	entries, err := os.ReadDir(m.cfg.BackupRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return []*models.BackupMetadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	backups := make([]*models.BackupMetadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(m.cfg.BackupRoot, e.Name())
		meta, err := ReadBackup(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logging.Warn().Err(err).Str("backup_path", dir).Msg("Skipping backup with unreadable metadata")
			continue
		}
		backups = append(backups, meta)
	}

	sortBackups(backups)
	metrics.SetBackupsAvailable(len(backups))
	return backups, nil
}

// LatestForVersion returns the most recent backup tagged with version
func (m *Manager) LatestForVersion(version int) (*models.BackupMetadata, error) {
	backups, err := m.ListBackups()
	if err != nil {
		return nil, err
	}
	for i := len(backups) - 1; i >= 0; i-- {
		if backups[i].HasVersion(version) {
			return backups[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no backup for v%d in %s", ErrBackupNotFound, version, m.cfg.BackupRoot)
}

// ReadBackup loads the metadata of the backup directory dir
//
//nolint:gosec // G304: dir is a backup directory chosen by the operator
func ReadBackup(dir string) (*models.BackupMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return nil, err
	}
	var meta models.BackupMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, MetadataFileName), err)
	}
	meta.BackupPath = dir
	return &meta, nil
}

// sortBackups orders by backup date, then by directory name
func sortBackups(backups []*models.BackupMetadata) {
	sort.SliceStable(backups, func(i, j int) bool {
		a, b := backups[i], backups[j]
		if !a.BackupDate.Equal(b.BackupDate) {
			return a.BackupDate.Before(b.BackupDate)
		}
		return filepath.Base(a.BackupPath) < filepath.Base(b.BackupPath)
	})
}
