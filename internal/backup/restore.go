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

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
	"github.com/tomtom215/recdeploy/internal/models"
)

// stagedTree is a backup tree copied next to its live directory
type stagedTree struct {
	tree
	staging string
	aside   string // previous live dir after the swap, "" if there was none
	swapped bool
}

// RestoreFromBackup replaces the live trees with the copies in meta.
// Trees the backup does not contain are left untouched and reported as
// warnings. With CreatePreRestoreBackup the live trees are backed up first
// and a failed safety backup aborts the restore.
func (m *Manager) RestoreFromBackup(ctx context.Context, meta *models.BackupMetadata, opts RestoreOptions) (*RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	result, err := m.restoreLocked(ctx, meta, opts)
	metrics.RecordRestore(err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Restore failed")
		return nil, err
	}
	result.Duration = time.Since(start)

	logging.Ctx(ctx).Info().
		Str("backup_path", result.BackupPath).
		Strs("restored", result.Restored).
		Dur("duration", result.Duration).
		Msg("Artifacts restored from backup")
	return result, nil
}

func (m *Manager) restoreLocked(ctx context.Context, meta *models.BackupMetadata, opts RestoreOptions) (*RestoreResult, error) {
	if meta == nil || meta.BackupPath == "" {
		return nil, fmt.Errorf("%w: backup has no path", ErrBackupNotFound)
	}

	if !opts.Force {
		validation, err := m.ValidateBackup(meta)
		if err != nil {
			return nil, err
		}
		if !validation.Valid {
			return nil, fmt.Errorf("%w: %s: %v", ErrBackupInvalid, meta.BackupPath, validation.Errors)
		}
	}

	result := &RestoreResult{
		BackupPath: meta.BackupPath,
		Version:    copyInt(meta.Version),
	}

	if opts.CreatePreRestoreBackup {
		safety, _, err := m.createBackupLocked(ctx, opts.PreRestoreVersion, opts.PreRestoreProduction)
		if err != nil {
			return nil, fmt.Errorf("pre-restore backup failed, nothing restored: %w", err)
		}
		result.PreRestoreBackup = safety.BackupPath
		logging.Ctx(ctx).Info().Str("backup_path", safety.BackupPath).Msg("Pre-restore safety backup created")
	}

	restored, warnings, err := m.installTrees(ctx, meta.BackupPath)
	if err != nil {
		return nil, err
	}
	result.Restored = restored
	result.Warnings = append(result.Warnings, warnings...)
	return result, nil
}

// installTrees replaces every live tree with its copy under src. Trees src
// does not contain are left as they are and reported as warnings.
func (m *Manager) installTrees(ctx context.Context, src string) (restored, warnings []string, err error) {
	// Phase 1: copy every tree next to its live directory
	staged := make([]*stagedTree, 0, 2)
	defer func() {
		for _, s := range staged {
			if s.staging != "" {
				os.RemoveAll(s.staging) //nolint:errcheck // Best effort cleanup
			}
		}
	}()

	for _, t := range m.trees() {
		from := filepath.Join(src, t.name)
		if !exists(from) {
			warnings = append(warnings, fmt.Sprintf("%s has no %s, %s left unchanged", filepath.Base(src), t.name, t.live))
			continue
		}

		st, err := stageTree(ctx, t, from)
		if err != nil {
			return nil, nil, err
		}
		staged = append(staged, st)
	}

	// Phase 2: swap staged copies in, undoing earlier swaps on failure
	for _, st := range staged {
		if err := st.swap(); err != nil {
			if rbErr := rollbackSwaps(staged); rbErr != nil {
				return nil, nil, fmt.Errorf("install of %s failed: %w (rollback also failed: %v)", st.live, err, rbErr)
			}
			return nil, nil, fmt.Errorf("install of %s failed: %w", st.live, err)
		}
	}

	for _, st := range staged {
		if st.aside != "" {
			if err := os.RemoveAll(st.aside); err != nil {
				warnings = append(warnings,
					fmt.Sprintf("could not remove previous %s at %s: %v", st.name, st.aside, err))
			}
		}
		restored = append(restored, st.live)
	}
	return restored, warnings, nil
}

// stageTree copies src into a hidden sibling of the live directory
func stageTree(ctx context.Context, t tree, src string) (*stagedTree, error) {
	parent := filepath.Dir(t.live)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(t.live)+".restore-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create restore staging dir: %w", err)
	}
	if _, _, _, err := copyTree(ctx, src, staging, ""); err != nil {
		os.RemoveAll(staging) //nolint:errcheck // Best effort cleanup on error
		return nil, fmt.Errorf("failed to copy %s from backup: %w", t.name, err)
	}
	return &stagedTree{tree: t, staging: staging}, nil
}

// swap moves the live dir aside and the staged copy into its place
func (s *stagedTree) swap() error {
	_, err := os.Lstat(s.live)
	switch {
	case err == nil:
		s.aside = fmt.Sprintf("%s.aside-%d", s.live, time.Now().UnixNano())
		if err := os.Rename(s.live, s.aside); err != nil {
			s.aside = ""
			return fmt.Errorf("failed to move live %s aside: %w", s.name, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	if err := os.Rename(s.staging, s.live); err != nil {
		if s.aside != "" {
			if rbErr := os.Rename(s.aside, s.live); rbErr != nil {
				return fmt.Errorf("failed to install %s: %w; previous copy kept at %s", s.name, err, s.aside)
			}
			s.aside = ""
		}
		return fmt.Errorf("failed to install %s: %w", s.name, err)
	}
	s.staging = ""
	s.swapped = true
	return nil
}

// rollbackSwaps restores the previous live dirs of trees already swapped
func rollbackSwaps(staged []*stagedTree) error {
	var errs []error
	for _, s := range staged {
		if !s.swapped {
			continue
		}
		if err := os.RemoveAll(s.live); err != nil {
			errs = append(errs, err)
			continue
		}
		if s.aside != "" {
			if err := os.Rename(s.aside, s.live); err != nil {
				errs = append(errs, fmt.Errorf("previous %s kept at %s: %w", s.name, s.aside, err))
				continue
			}
		}
		s.swapped = false
		s.aside = ""
	}
	return errors.Join(errs...)
}
