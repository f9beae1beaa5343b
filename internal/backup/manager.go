// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"fmt"
	"sync"
	"time"
)

// Manager creates, lists and restores backups. Backups and restores are
// serialized so a restore never reads a tree another call is writing.
type Manager struct {
	cfg *Config
	mu  sync.Mutex
	now func() time.Time
}

// tree pairs a live directory with its name inside a backup
type tree struct {
	name string
	live string
}

// NewManager creates a new backup manager
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backup configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup configuration: %w", err)
	}
	if err := cfg.EnsureBackupDir(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

// Root returns the backup root directory
func (m *Manager) Root() string {
	return m.cfg.BackupRoot
}

func (m *Manager) trees() []tree {
	var ts []tree
	if m.cfg.ArtifactDir != "" {
		ts = append(ts, tree{name: ArtifactDirName, live: m.cfg.ArtifactDir})
	}
	if m.cfg.ResultsDir != "" {
		ts = append(ts, tree{name: ResultsDirName, live: m.cfg.ResultsDir})
	}
	return ts
}
