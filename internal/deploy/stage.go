// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/recdeploy/internal/backup"
	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/hosting"
	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/models"
	"github.com/tomtom215/recdeploy/internal/validation"
)

// StageRequest describes a trained model to stage as the test deployment
type StageRequest struct {
	// Training output: the serialized model and, optionally, its metrics.
	// Must not be the live artifact or results directory.
	ArtifactDir string `json:"artifact_dir" validate:"required"`
	ResultsDir  string `json:"results_dir"`

	// Training set size, recorded in the description
	NumUsers    int `json:"num_users" validate:"min=0"`
	NumProducts int `json:"num_products" validate:"min=0"`

	// Overrides the configured compute when set
	Compute *hosting.ComputeConfig `json:"compute,omitempty"`
}

// StageTest saves the artifact, creates a test deployment for it and records
// it as the TEST slot with version current_version+1. Nothing is recorded if
// a remote call fails. With a backup manager the training output is kept as
// the version's candidate, which Promote later installs into the live
// directories; the pre-stage backup therefore still holds the previous model.
func (o *Orchestrator) StageTest(ctx context.Context, req StageRequest) (rec *models.DeploymentRecord, err error) {
	ctx, finish := o.begin(ctx, "stage_test")
	defer func() { finish(err) }()

	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, verr
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client == nil {
		return nil, ErrNoHostingClient
	}
	if t := o.state.TestDeployment; t != nil {
		return nil, fmt.Errorf("%w: v%d (%s); promote or clean it up first", ErrTestAlreadyStaged, t.Version, t.DeploymentID)
	}

	version := o.state.NextVersion()
	log := logging.Ctx(ctx).With().Int("version", version).Logger()

	artifactDir := req.ArtifactDir
	if o.backups != nil {
		var candidate string
		candidate, err = o.backups.SaveCandidate(ctx, version, backup.CandidateSource{
			ArtifactDir: req.ArtifactDir,
			ResultsDir:  req.ResultsDir,
		})
		if err != nil {
			return nil, fmt.Errorf("keep training output for v%d: %w", version, err)
		}
		defer func() {
			if err == nil {
				return
			}
			if derr := o.backups.DiscardCandidate(version); derr != nil {
				log.Warn().Err(derr).Msg("Could not discard candidate artifacts")
			}
		}()
		artifactDir = filepath.Join(candidate, backup.ArtifactDirName)
	}

	if o.backups != nil && o.cfg.BackupBeforeStage {
		var current *int
		if o.state.ProductionDeployment != nil {
			v := o.state.CurrentVersion
			current = &v
		}
		if _, err := o.backups.CreateBackup(ctx, current, o.state.ProductionDeployment.Clone()); err != nil {
			return nil, fmt.Errorf("backup before staging v%d: %w", version, err)
		}
	}

	compute := o.cfg.Compute
	if req.Compute != nil {
		compute = *req.Compute
	}

	description := fmt.Sprintf("Trained with %s users and %s products - TESTING",
		humanize.Comma(int64(req.NumUsers)), humanize.Comma(int64(req.NumProducts)))

	log.Info().Str("artifact_dir", artifactDir).Msg("Saving model artifact")
	modelID, err := o.client.SaveArtifact(ctx, hosting.ArtifactRequest{
		ArtifactDir: artifactDir,
		DisplayName: fmt.Sprintf("%s v%d (TEST)", o.cfg.ProjectName, version),
		Description: description,
		ProjectName: o.cfg.ProjectName,
		Metadata: map[string]string{
			"version":      strconv.Itoa(version),
			"num_users":    strconv.Itoa(req.NumUsers),
			"num_products": strconv.Itoa(req.NumProducts),
			"status":       string(models.StatusTest),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("save artifact for v%d: %w", version, err)
	}

	displayName := fmt.Sprintf("%s API v%d (TEST)", o.cfg.ProjectName, version)
	log.Info().
		Str("model_id", modelID).
		Str("shape", compute.Shape).
		Int("ocpus", compute.OCPUs).
		Int("memory_gb", compute.MemoryGB).
		Msg("Creating test deployment")

	dep, err := o.client.CreateDeployment(ctx, modelID, displayName, compute)
	if err != nil {
		// A deployment that never became active is still billed
		if dep != nil && dep.ID != "" {
			derr := o.client.DeleteDeployment(context.WithoutCancel(ctx), dep.ID)
			switch {
			case derr == nil:
				log.Info().Str("deployment_id", dep.ID).Msg("Deleted failed test deployment")
			case !errors.Is(derr, hosting.ErrDeploymentNotFound):
				log.Error().Err(derr).Str("deployment_id", dep.ID).Msg("Could not delete failed test deployment")
			}
		}
		return nil, fmt.Errorf("create test deployment for v%d (model %s): %w", version, modelID, err)
	}

	rec = &models.DeploymentRecord{
		DeploymentID: dep.ID,
		ModelID:      modelID,
		Endpoint:     dep.Endpoint,
		Version:      version,
		Status:       models.StatusTest,
		CreatedAt:    o.now(),
		Description:  description,
		DisplayName:  displayName,
		Shape:        compute.Shape,
		OCPUs:        compute.OCPUs,
		MemoryGB:     compute.MemoryGB,
	}

	next := o.state.Clone()
	next.TestDeployment = rec
	next.AppendHistory(rec)

	if err := o.commit(context.WithoutCancel(ctx), next); err != nil {
		// Do not leave an untracked deployment behind
		if derr := o.client.DeleteDeployment(context.WithoutCancel(ctx), dep.ID); derr != nil {
			log.Error().Err(derr).Str("deployment_id", dep.ID).Msg("Could not delete untracked test deployment")
		}
		return nil, err
	}

	log.Info().
		Str("deployment_id", rec.DeploymentID).
		Str("endpoint", rec.Endpoint).
		Msg("Test deployment staged")
	o.emit(ctx, events.TypeTestStaged, rec, nil)

	return rec.Clone(), nil
}

// CleanupResult reports what CleanupTest removed
type CleanupResult struct {
	// Removed is nil when no test deployment was staged
	Removed  *models.DeploymentRecord `json:"removed"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// CleanupTest deletes the test deployment and clears the TEST slot. With no
// test staged it does nothing. A failed remote delete is a warning and the
// slot is still cleared. Production is never touched.
func (o *Orchestrator) CleanupTest(ctx context.Context) (res *CleanupResult, err error) {
	ctx, finish := o.begin(ctx, "cleanup_test")
	defer func() { finish(err) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	res = &CleanupResult{}
	test := o.state.TestDeployment
	if test == nil {
		logging.Ctx(ctx).Info().Msg("No test deployment to clean up")
		return res, nil
	}
	log := logging.Ctx(ctx).With().Int("version", test.Version).Str("deployment_id", test.DeploymentID).Logger()

	switch {
	case o.client == nil:
		res.Warnings = append(res.Warnings, fmt.Sprintf("no hosting client: deployment %s was not deleted", test.DeploymentID))
	default:
		derr := o.client.DeleteDeployment(context.WithoutCancel(ctx), test.DeploymentID)
		switch {
		case derr == nil:
			log.Info().Msg("Test deployment deleted")
		case errors.Is(derr, hosting.ErrDeploymentNotFound):
			log.Info().Msg("Test deployment already gone")
		default:
			log.Warn().Err(derr).Msg("Could not delete test deployment")
			res.Warnings = append(res.Warnings, fmt.Sprintf("delete test deployment %s: %v", test.DeploymentID, derr))
		}
	}

	next := o.state.Clone()
	next.TestDeployment = nil
	if err := o.commit(context.WithoutCancel(ctx), next); err != nil {
		return nil, err
	}
	o.discardCandidate(ctx, test.Version)

	res.Removed = test.Clone()
	o.emit(ctx, events.TypeTestCleaned, test, nil)
	return res, nil
}

// ImportRequest describes a production deployment created outside this tool
type ImportRequest struct {
	DeploymentID string `json:"deployment_id" validate:"required"`
	ModelID      string `json:"model_id" validate:"required"`
	Endpoint     string `json:"endpoint" validate:"required,url"`
	Version      int    `json:"version" validate:"min=1"`
	Description  string `json:"description"`

	// Replace an already recorded production deployment
	Overwrite bool `json:"overwrite"`
}

// ImportExisting records an existing deployment as PRODUCTION and sets
// current_version to its version. Used on first run.
func (o *Orchestrator) ImportExisting(ctx context.Context, req ImportRequest) (rec *models.DeploymentRecord, err error) {
	ctx, finish := o.begin(ctx, "import")
	defer func() { finish(err) }()

	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, verr
	}
	if req.Description == "" {
		req.Description = "Imported existing deployment"
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.state.ProductionDeployment
	if prev != nil && !req.Overwrite {
		return nil, fmt.Errorf("%w: v%d (%s)", ErrProductionExists, prev.Version, prev.DeploymentID)
	}

	now := o.now()
	rec = &models.DeploymentRecord{
		DeploymentID: req.DeploymentID,
		ModelID:      req.ModelID,
		Endpoint:     req.Endpoint,
		Version:      req.Version,
		Status:       models.StatusProduction,
		CreatedAt:    now,
		Description:  req.Description,
		Imported:     true,
	}

	next := o.state.Clone()
	if prev != nil {
		replaced := prev.Clone()
		replaced.Status = models.StatusReplaced
		replaced.ReplacedAt = &now
		next.AppendHistory(replaced)
	}
	next.ProductionDeployment = rec
	next.CurrentVersion = req.Version
	next.AppendHistory(rec)

	if err := o.commit(ctx, next); err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int("version", rec.Version).
		Str("deployment_id", rec.DeploymentID).
		Str("model_id", rec.ModelID).
		Msgf("Imported existing deployment; next model will be v%d", rec.Version+1)
	o.emit(ctx, events.TypeDeploymentImported, rec, nil)

	return rec.Clone(), nil
}
