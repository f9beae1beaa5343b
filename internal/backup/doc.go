// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package backup snapshots the live model artifact and results directories
// into immutable, versioned backup directories and restores them.
//
// # Layout
//
// Each backup is one directory under the backup root:
//
//	v3_20260314_091500/
//	    recommender_model_artifact/   copy of the artifact tree
//	    results/                      copy of the results tree
//	    metadata.json                 BackupMetadata, with a SHA-256 per file
//
// Backups taken without a known version are named backup_<timestamp>. Two
// backups in the same second get _2, _3 suffixes; an existing backup is never
// overwritten. Directories are assembled under a hidden .tmp-* name and
// renamed into place, so ListBackups never sees a half-written backup.
//
// # Restore
//
// RestoreFromBackup never deletes a live directory before its replacement is
// fully copied. All trees are first copied next to their live counterparts,
// then swapped in with renames; if a swap fails, trees already swapped are
// put back and the error is returned. With CreatePreRestoreBackup set, the
// live trees are backed up first and nothing is restored if that fails.
//
// # Candidates
//
// SaveCandidate keeps a copy of a staged model's training output under the
// hidden .candidates directory of the backup root. InstallCandidate swaps
// that copy into the live trees on promotion, using the same staged swap
// as a restore.
//
// # Retention
//
// ApplyRetention prunes old backups by age and count while always keeping
// a minimum number and, optionally, the newest backup of every version so
// artifact rollback stays possible.
package backup
