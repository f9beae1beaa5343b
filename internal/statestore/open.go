// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package statestore

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// BackupRoot holds the JSON state file for the file backend
	BackupRoot string

	// BadgerDir is the database directory for the badger backend
	BadgerDir string
}

// Open returns the configured store.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(filepath.Join(opts.BackupRoot, DefaultStateFileName))
	case BackendBadger:
		return OpenBadger(BadgerConfig{Dir: opts.BadgerDir, SyncWrites: true})
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
	}
}
