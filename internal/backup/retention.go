// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/models"
)

// ApplyRetention deletes backups the configured policy no longer keeps.
func (m *Manager) ApplyRetention(ctx context.Context) (*RetentionResult, error) {
	return m.ApplyRetentionPolicy(ctx, m.cfg.Retention)
}

// ApplyRetentionPolicy deletes backups outside policy, oldest first.
func (m *Manager) ApplyRetentionPolicy(ctx context.Context, policy RetentionPolicy) (*RetentionResult, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	backups, err := m.ListBackups()
	if err != nil {
		return nil, err
	}

	keep := keepSet(backups, policy)
	toDelete := selectForDeletion(backups, keep, policy, m.now())

	result := &RetentionResult{Deleted: make([]string, 0, len(toDelete))}
	for _, b := range toDelete {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := m.deleteBackupLocked(b); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("backup_path", b.BackupPath).Msg("Failed to delete backup")
			continue
		}
		result.Deleted = append(result.Deleted, b.BackupPath)
	}
	result.Kept = len(backups) - len(result.Deleted)

	if len(result.Deleted) > 0 {
		logging.Ctx(ctx).Info().
			Int("deleted", len(result.Deleted)).
			Int("kept", result.Kept).
			Msg("Backup retention applied")
	}
	return result, nil
}

// keepSet marks backups protected from deletion. backups is oldest first.
func keepSet(backups []*models.BackupMetadata, policy RetentionPolicy) map[string]bool {
	keep := make(map[string]bool)

	for i := len(backups) - 1; i >= 0 && len(backups)-i <= policy.MinCount; i-- {
		keep[backups[i].BackupPath] = true
	}

	if policy.KeepLatestPerVersion {
		seen := make(map[int]bool)
		for i := len(backups) - 1; i >= 0; i-- {
			b := backups[i]
			if b.Version == nil || seen[*b.Version] {
				continue
			}
			seen[*b.Version] = true
			keep[b.BackupPath] = true
		}
	}
	return keep
}

// selectForDeletion applies max age, then max count, skipping protected backups
func selectForDeletion(backups []*models.BackupMetadata, keep map[string]bool, policy RetentionPolicy, now time.Time) []*models.BackupMetadata {
	var toDelete []*models.BackupMetadata
	marked := make(map[string]bool)

	if policy.MaxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -policy.MaxAgeDays)
		for _, b := range backups {
			if !keep[b.BackupPath] && b.BackupDate.Before(cutoff) {
				toDelete = append(toDelete, b)
				marked[b.BackupPath] = true
			}
		}
	}

	if policy.MaxCount > 0 {
		remaining := len(backups) - len(toDelete)
		for _, b := range backups {
			if remaining <= policy.MaxCount {
				break
			}
			if keep[b.BackupPath] || marked[b.BackupPath] {
				continue
			}
			toDelete = append(toDelete, b)
			marked[b.BackupPath] = true
			remaining--
		}
	}
	return toDelete
}

// deleteBackupLocked removes a backup directory directly under the root
func (m *Manager) deleteBackupLocked(b *models.BackupMetadata) error {
	root, err := filepath.Abs(m.cfg.BackupRoot)
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(b.BackupPath)
	if err != nil {
		return err
	}
	if filepath.Dir(dir) != root {
		return fmt.Errorf("refusing to delete %s outside backup root", b.BackupPath)
	}
	return os.RemoveAll(dir)
}
