// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
	"github.com/tomtom215/recdeploy/internal/models"
)

// maxNameAttempts bounds the same-second suffix search
const maxNameAttempts = 1000

// CreateBackup copies the live trees into a new backup directory. version
// may be nil when no version is known yet; prod is the production record to
// snapshot into the metadata (may be nil).
func (m *Manager) CreateBackup(ctx context.Context, version *int, prod *models.DeploymentRecord) (*models.BackupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	meta, size, err := m.createBackupLocked(ctx, version, prod)
	metrics.RecordBackup(time.Since(start), size, err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Backup failed")
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("backup_path", meta.BackupPath).
		Int("files", len(meta.Files)).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("Backup created")
	return meta, nil
}

func (m *Manager) createBackupLocked(ctx context.Context, version *int, prod *models.DeploymentRecord) (*models.BackupMetadata, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := m.cfg.EnsureBackupDir(); err != nil {
		return nil, 0, err
	}

	now := m.now()
	ts := now.Format(TimestampLayout)
	name, err := m.uniqueName(backupDirName(version, ts))
	if err != nil {
		return nil, 0, err
	}

	staging, err := os.MkdirTemp(m.cfg.BackupRoot, stagingPrefix+name+"-")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	meta := &models.BackupMetadata{
		ID:                   uuid.New().String(),
		Version:              copyInt(version),
		Timestamp:            ts,
		BackupDate:           now,
		ProductionDeployment: prod.Clone(),
		ProjectName:          m.cfg.ProjectName,
		Files:                make([]models.BackupFile, 0),
	}

	var total int64
	for _, t := range m.trees() {
		files, size, found, err := copyTree(ctx, t.live, filepath.Join(staging, t.name), t.name)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to back up %s: %w", t.live, err)
		}
		if !found {
			logging.Ctx(ctx).Warn().Str("path", t.live).Msg("Live directory missing, not included in backup")
			continue
		}
		switch t.name {
		case ArtifactDirName:
			meta.ArtifactIncluded = true
		case ResultsDirName:
			meta.ResultsIncluded = true
		}
		meta.Files = append(meta.Files, files...)
		total += size
	}

	if err := writeMetadata(filepath.Join(staging, MetadataFileName), meta); err != nil {
		return nil, 0, err
	}

	final := filepath.Join(m.cfg.BackupRoot, name)
	if err := os.Rename(staging, final); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize backup %s: %w", name, err)
	}
	committed = true

	meta.BackupPath = final
	return meta, total, nil
}

// backupDirName returns v{N}_{ts} or backup_{ts}
func backupDirName(version *int, ts string) string {
	if version != nil {
		return fmt.Sprintf("v%d_%s", *version, ts)
	}
	return "backup_" + ts
}

// uniqueName appends _2, _3... until the name is free
func (m *Manager) uniqueName(base string) (string, error) {
	name := base
	for i := 2; i <= maxNameAttempts; i++ {
		_, err := os.Lstat(filepath.Join(m.cfg.BackupRoot, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check backup name %s: %w", name, err)
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
	return "", fmt.Errorf("no free backup name for %s", base)
}

func writeMetadata(p string, meta *models.BackupMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup metadata: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: inside staging dir
	if err != nil {
		return fmt.Errorf("failed to create backup metadata: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to sync backup metadata: %w", err)
	}
	return f.Close()
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
