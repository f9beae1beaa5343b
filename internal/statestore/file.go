// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package statestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/models"
)

// DefaultStateFileName is the state file created inside the backup root.
const DefaultStateFileName = "deployment_state.json"

// FileStore keeps the state in a single JSON file.
type FileStore struct {
	path   string
	mu     sync.Mutex
	closed bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path. The parent directory is created if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is a first run and yields the
// zero state; an empty, unparseable or invalid file is ErrCorruptState.
func (s *FileStore) Load(_ context.Context) (*models.DeploymentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Debug().Str("path", s.path).Msg("No state file, starting from empty state")
		return models.NewDeploymentState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}

	return decodeState(data, s.path)
}

// Save writes the state to a temp file in the same directory, syncs it and
// renames it over the state file. A crash at any point leaves either the
// previous or the new file, never a partial one.
func (s *FileStore) Save(_ context.Context, state *models.DeploymentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	data, err := encodeState(state)
	if err != nil {
		return err
	}

	return writeFileAtomic(s.path, data)
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func encodeState(state *models.DeploymentState) ([]byte, error) {
	if state.DeploymentHistory == nil {
		cp := *state
		cp.DeploymentHistory = make([]*models.DeploymentRecord, 0)
		state = &cp
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte, source string) (*models.DeploymentState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptState, source)
	}

	state := models.NewDeploymentState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, source, err)
	}
	if state.DeploymentHistory == nil {
		state.DeploymentHistory = make([]*models.DeploymentRecord, 0)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, source, err)
	}
	return state, nil
}

// writeFileAtomic replaces path with data via temp file + fsync + rename.
//
//nolint:gosec // G304: path comes from operator configuration
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck // Best effort cleanup on error
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()        //nolint:errcheck // Best effort cleanup on error
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to set state file permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry so the rename survives a power loss.
// Not every platform supports syncing a directory, so failures are logged only.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: directory of the configured state file
	if err != nil {
		return
	}
	defer d.Close() //nolint:errcheck // Best effort cleanup
	if err := d.Sync(); err != nil {
		logging.Debug().Err(err).Str("dir", dir).Msg("Directory sync not supported")
	}
}
