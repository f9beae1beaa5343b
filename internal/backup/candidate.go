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
	"strconv"
	"time"

	"github.com/tomtom215/recdeploy/internal/logging"
)

// CandidateSource locates the training output of a model about to be staged
type CandidateSource struct {
	ArtifactDir string
	ResultsDir  string // optional
}

// CandidatePath returns where the staged copy of version is kept
func (m *Manager) CandidatePath(version int) string {
	return filepath.Join(m.cfg.BackupRoot, candidatesDirName, "v"+strconv.Itoa(version))
}

// SaveCandidate copies the training output for version into the backup
// root, laid out like a backup. The copy is what gets uploaded for the test
// deployment and what InstallCandidate later puts into the live trees, so
// retraining after staging cannot change either. Sources that are or
// overlap a live directory are rejected with ErrCandidateIsLive.
func (m *Manager) SaveCandidate(ctx context.Context, version int, src CandidateSource) (string, error) {
	if src.ArtifactDir == "" {
		return "", fmt.Errorf("candidate artifact dir is required")
	}
	for _, p := range []string{src.ArtifactDir, src.ResultsDir} {
		if p == "" {
			continue
		}
		if err := m.checkNotLive(p); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent := filepath.Join(m.cfg.BackupRoot, candidatesDirName)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", fmt.Errorf("failed to create candidate directory: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, stagingPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create candidate staging dir: %w", err)
	}
	cleanup := func() {
		os.RemoveAll(tmp) //nolint:errcheck // Best effort cleanup on error
	}

	_, size, found, err := copyTree(ctx, src.ArtifactDir, filepath.Join(tmp, ArtifactDirName), ArtifactDirName)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("failed to copy candidate artifact: %w", err)
	}
	if !found {
		cleanup()
		return "", fmt.Errorf("candidate artifact dir %s does not exist", src.ArtifactDir)
	}
	if src.ResultsDir != "" {
		_, n, _, err := copyTree(ctx, src.ResultsDir, filepath.Join(tmp, ResultsDirName), ResultsDirName)
		if err != nil {
			cleanup()
			return "", fmt.Errorf("failed to copy candidate results: %w", err)
		}
		size += n
	}

	dst := m.CandidatePath(version)
	if err := os.RemoveAll(dst); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to replace candidate %s: %w", dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to finalize candidate: %w", err)
	}

	logging.Ctx(ctx).Info().
		Int("version", version).
		Str("path", dst).
		Int64("size_bytes", size).
		Msg("Candidate artifacts saved")
	return dst, nil
}

// InstallCandidate replaces the live trees with the saved copy of version
// and removes the copy. Returns ErrCandidateNotFound when none was saved.
func (m *Manager) InstallCandidate(ctx context.Context, version int) (*RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	src := m.CandidatePath(version)
	if !exists(src) {
		return nil, fmt.Errorf("%w %d", ErrCandidateNotFound, version)
	}

	restored, warnings, err := m.installTrees(ctx, src)
	if err != nil {
		return nil, err
	}
	result := &RestoreResult{
		BackupPath: src,
		Version:    &version,
		Restored:   restored,
		Warnings:   warnings,
	}
	if err := os.RemoveAll(src); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not remove installed candidate %s: %v", src, err))
	}
	result.Duration = time.Since(start)

	logging.Ctx(ctx).Info().
		Int("version", version).
		Strs("installed", restored).
		Dur("duration", result.Duration).
		Msg("Candidate installed into live directories")
	return result, nil
}

// DiscardCandidate removes the saved copy of version. Missing copies are
// not an error.
func (m *Manager) DiscardCandidate(version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.CandidatePath(version)
	if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to discard candidate %s: %w", p, err)
	}
	return nil
}

func (m *Manager) checkNotLive(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("invalid candidate path %s: %w", p, err)
	}
	for _, t := range m.trees() {
		live, err := filepath.Abs(t.live)
		if err != nil {
			continue
		}
		if abs == live || isWithin(live, abs) || isWithin(abs, live) {
			return fmt.Errorf("%w: %s overlaps %s", ErrCandidateIsLive, p, t.live)
		}
	}
	return nil
}
