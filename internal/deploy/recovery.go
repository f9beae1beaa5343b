// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"context"
	"fmt"

	"github.com/tomtom215/recdeploy/internal/backup"
	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/models"
	"github.com/tomtom215/recdeploy/internal/validation"
)

// RollbackArtifacts restores the live artifact and results directories from
// the most recent backup of version. The live trees are always backed up
// first, tagged with the current version, so a rollback can be undone.
func (o *Orchestrator) RollbackArtifacts(ctx context.Context, version int, opts backup.RestoreOptions) (res *backup.RestoreResult, err error) {
	ctx, finish := o.begin(ctx, "rollback_artifacts")
	defer func() { finish(err) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.backups == nil {
		return nil, ErrBackupsDisabled
	}

	meta, err := o.backups.LatestForVersion(version)
	if err != nil {
		return nil, fmt.Errorf("no backup to roll back to for v%d: %w", version, err)
	}

	logging.Ctx(ctx).Info().
		Int("version", version).
		Str("backup_path", meta.BackupPath).
		Msg("Rolling back artifacts")

	opts.CreatePreRestoreBackup = true
	opts.PreRestoreVersion = nil
	opts.PreRestoreProduction = o.state.ProductionDeployment.Clone()
	if opts.PreRestoreProduction != nil {
		v := o.state.CurrentVersion
		opts.PreRestoreVersion = &v
	}

	res, err = o.backups.RestoreFromBackup(ctx, meta, opts)
	if err != nil {
		return nil, fmt.Errorf("restore v%d from %s: %w", version, meta.BackupPath, err)
	}

	if res.PreRestoreBackup != "" {
		logging.Ctx(ctx).Info().Str("safety_backup", res.PreRestoreBackup).Msg("Replaced artifacts kept in safety backup")
	}

	ev := events.New(events.TypeArtifactsRolledBack)
	ev.ProjectName = o.cfg.ProjectName
	ev.Version = version
	events.Emit(ctx, o.events, ev)

	return res, nil
}

// RepairRequest is the real production deployment to record
type RepairRequest struct {
	DeploymentID string `json:"deployment_id" validate:"required"`
	ModelID      string `json:"model_id" validate:"required"`
	Endpoint     string `json:"endpoint" validate:"required,url"`
	Version      int    `json:"version" validate:"min=1"`
	Description  string `json:"description"`
}

// RepairResult describes a repair
type RepairResult struct {
	Production *models.DeploymentRecord `json:"production"`

	// Test record dropped from state. Its remote deployment was not deleted.
	ClearedTest *models.DeploymentRecord `json:"cleared_test,omitempty"`

	// Backup used as the source of truth, for RepairFromBackup
	BackupPath string `json:"backup_path,omitempty"`
}

// RepairState overwrites production and current_version with operator
// supplied ground truth and clears the test slot. current_version may go
// down. Used when state no longer matches what production actually serves.
func (o *Orchestrator) RepairState(ctx context.Context, req RepairRequest) (res *RepairResult, err error) {
	ctx, finish := o.begin(ctx, "repair_state")
	defer func() { finish(err) }()

	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, verr
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	return o.repairLocked(ctx, req)
}

func (o *Orchestrator) repairLocked(ctx context.Context, req RepairRequest) (*RepairResult, error) {
	now := o.now()
	rec := &models.DeploymentRecord{
		DeploymentID: req.DeploymentID,
		ModelID:      req.ModelID,
		Endpoint:     req.Endpoint,
		Version:      req.Version,
		Status:       models.StatusProduction,
		CreatedAt:    now,
		RepairedAt:   &now,
		Description:  req.Description,
	}

	res := &RepairResult{Production: rec.Clone(), ClearedTest: o.state.TestDeployment.Clone()}
	log := logging.Ctx(ctx)

	if prev := o.state.ProductionDeployment; prev != nil {
		log.Info().
			Int("recorded_version", prev.Version).
			Str("recorded_deployment_id", prev.DeploymentID).
			Str("recorded_model_id", prev.ModelID).
			Msg("Overwriting recorded production deployment")
	}

	next := o.state.Clone()
	next.ProductionDeployment = rec
	next.CurrentVersion = req.Version
	next.TestDeployment = nil
	next.AppendHistory(rec)

	if err := o.commit(ctx, next); err != nil {
		return nil, err
	}

	if res.ClearedTest != nil {
		o.discardCandidate(ctx, res.ClearedTest.Version)
		log.Warn().
			Str("test_deployment_id", res.ClearedTest.DeploymentID).
			Msg("Test slot cleared by repair; delete the remote test deployment if it still exists")
	}
	log.Info().
		Int("version", rec.Version).
		Str("deployment_id", rec.DeploymentID).
		Str("model_id", rec.ModelID).
		Msgf("State repaired; next model will be v%d", rec.Version+1)
	o.emit(ctx, events.TypeStateRepaired, rec, nil)

	return res, nil
}

// RepairFromBackupOptions configures RepairFromBackup
type RepairFromBackupOptions struct {
	// Skip checking the backup's model against the live deployment
	Force bool
}

// RepairFromBackup repairs state from the production deployment recorded in
// the most recent backup of version. When a hosting client is configured the
// live deployment must still serve the backup's model unless Force is set.
func (o *Orchestrator) RepairFromBackup(ctx context.Context, version int, opts RepairFromBackupOptions) (res *RepairResult, err error) {
	ctx, finish := o.begin(ctx, "repair_from_backup")
	defer func() { finish(err) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.backups == nil {
		return nil, ErrBackupsDisabled
	}

	meta, err := o.backups.LatestForVersion(version)
	if err != nil {
		return nil, fmt.Errorf("no backup for v%d; repair with explicit deployment_id, model_id and endpoint instead: %w", version, err)
	}

	snap := meta.ProductionDeployment
	switch {
	case snap == nil:
		return nil, fmt.Errorf("%w: %s has no production_deployment", ErrBackupIncomplete, meta.BackupPath)
	case snap.DeploymentID == "":
		return nil, fmt.Errorf("%w: %s is missing deployment_id", ErrBackupIncomplete, meta.BackupPath)
	case snap.ModelID == "":
		return nil, fmt.Errorf("%w: %s is missing model_id", ErrBackupIncomplete, meta.BackupPath)
	case snap.Endpoint == "":
		return nil, fmt.Errorf("%w: %s is missing endpoint", ErrBackupIncomplete, meta.BackupPath)
	}

	if o.client != nil && !opts.Force {
		live, err := o.client.GetDeploymentModel(ctx, snap.DeploymentID)
		if err != nil {
			return nil, fmt.Errorf("check backup against deployment %s: %w", snap.DeploymentID, err)
		}
		if live != snap.ModelID {
			return nil, fmt.Errorf("%w: %s records model %s but deployment %s serves %s (use force to repair anyway)",
				ErrBackupModelMismatch, meta.BackupPath, snap.ModelID, snap.DeploymentID, live)
		}
	}

	res, err = o.repairLocked(ctx, RepairRequest{
		DeploymentID: snap.DeploymentID,
		ModelID:      snap.ModelID,
		Endpoint:     snap.Endpoint,
		Version:      version,
		Description:  snap.Description,
	})
	if err != nil {
		return nil, err
	}
	res.BackupPath = meta.BackupPath
	return res, nil
}

// Backup captures the live artifact and results directories, tagged with
// the current version when a production deployment is recorded.
func (o *Orchestrator) Backup(ctx context.Context) (meta *models.BackupMetadata, err error) {
	ctx, finish := o.begin(ctx, "backup")
	defer func() { finish(err) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.backups == nil {
		return nil, ErrBackupsDisabled
	}

	var version *int
	prod := o.state.ProductionDeployment
	if prod != nil {
		v := o.state.CurrentVersion
		version = &v
	}

	meta, err = o.backups.CreateBackup(ctx, version, prod.Clone())
	if err != nil {
		return nil, err
	}

	ev := events.New(events.TypeBackupCreated)
	ev.ProjectName = o.cfg.ProjectName
	if version != nil {
		ev.Version = *version
	}
	events.Emit(ctx, o.events, ev)
	return meta, nil
}

// ListBackups returns every backup, oldest first
func (o *Orchestrator) ListBackups() ([]*models.BackupMetadata, error) {
	if o.backups == nil {
		return nil, ErrBackupsDisabled
	}
	return o.backups.ListBackups()
}
