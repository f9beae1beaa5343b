// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

/*
Package models defines the data structures shared by deployctl packages.

Key Components:

  - DeploymentState: the persisted document tracking production, the staged
    test deployment, the current version and an append-only history
  - DeploymentRecord: one remote deployment at one point in its lifecycle
  - Status: TEST, PRODUCTION or REPLACED
  - BackupMetadata: the metadata.json written into every backup directory

JSON Marshaling:

Field names are snake_case and times use RFC3339, so state files written by
earlier releases load unchanged. Optional timestamps are pointers and omitted
when nil.

Thread Safety:

Models carry no locks. DeploymentState.Clone returns a deep copy, which the
orchestrator mutates before installing it as the new state.
*/
package models
