// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package statestore persists the deployment state, the single mutable source
// of truth for which model serves the test and production slots.
//
// Two backends are provided:
//
//	FileStore   - a JSON document written with temp-file + fsync + rename
//	BadgerStore - a BadgerDB key with a revision journal of every save
//
// Both distinguish a legitimate first run (nothing stored yet, zero state)
// from a stored state that cannot be decoded or fails validation, which is
// reported as ErrCorruptState instead of being silently replaced.
package statestore

import (
	"context"
	"errors"

	"github.com/tomtom215/recdeploy/internal/models"
)

var (
	// ErrCorruptState is returned when persisted state exists but cannot be used.
	ErrCorruptState = errors.New("deployment state is corrupt")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("state store is closed")
)

// Store loads and saves the full deployment state as a single unit.
type Store interface {
	// Load returns the persisted state, or a fresh zero state if none exists.
	Load(ctx context.Context) (*models.DeploymentState, error)

	// Save atomically replaces the persisted state.
	Save(ctx context.Context, state *models.DeploymentState) error

	// Close releases resources held by the store.
	Close() error
}
