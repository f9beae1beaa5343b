// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/hosting"
	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
	"github.com/tomtom215/recdeploy/internal/models"
)

// PromoteOptions configures Promote
type PromoteOptions struct {
	// When set, the staged test deployment must have this id
	ExpectedTestDeploymentID string
}

// PromoteResult describes a successful promotion
type PromoteResult struct {
	Production *models.DeploymentRecord `json:"production"`

	// Previous production record, now REPLACED. Nil on first promotion.
	Replaced *models.DeploymentRecord `json:"replaced,omitempty"`

	// InPlace is true when production's served model was swapped remotely
	InPlace        bool     `json:"in_place"`
	VerifyAttempts int      `json:"verify_attempts,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Promote makes the staged test model the production model.
//
// Without a production deployment the test record is relabeled. Otherwise
// production's served model is swapped in place and read back until it is
// confirmed. Any failure up to confirmation returns a *PromotionError and
// leaves state and the test deployment untouched. Once state is saved the
// promoted version's kept training output is installed into the live
// directories.
func (o *Orchestrator) Promote(ctx context.Context, opts PromoteOptions) (res *PromoteResult, err error) {
	ctx, finish := o.begin(ctx, "promote")
	defer func() { finish(err) }()

	o.mu.Lock()
	defer o.mu.Unlock()

	test := o.state.TestDeployment
	if test == nil {
		return nil, fmt.Errorf("%w: stage a test version first", ErrNoTestDeployment)
	}
	if opts.ExpectedTestDeploymentID != "" && opts.ExpectedTestDeploymentID != test.DeploymentID {
		return nil, fmt.Errorf("%w: staged test is %s, not %s", ErrTestIDMismatch, test.DeploymentID, opts.ExpectedTestDeploymentID)
	}
	if test.Version != o.state.NextVersion() {
		return nil, fmt.Errorf("%w: test is v%d but current version is v%d", ErrVersionSkew, test.Version, o.state.CurrentVersion)
	}

	prod := o.state.ProductionDeployment
	if prod == nil {
		return o.promoteFirst(ctx, test)
	}
	if o.client == nil {
		return nil, ErrNoHostingClient
	}
	return o.promoteInPlace(ctx, prod, test)
}

// promoteFirst relabels the test deployment as production
func (o *Orchestrator) promoteFirst(ctx context.Context, test *models.DeploymentRecord) (*PromoteResult, error) {
	now := o.now()

	rec := test.Clone()
	rec.Status = models.StatusProduction
	rec.PromotedAt = &now

	next := o.state.Clone()
	next.ProductionDeployment = rec
	next.TestDeployment = nil
	next.CurrentVersion = rec.Version
	next.AppendHistory(rec)

	if err := o.commit(ctx, next); err != nil {
		return nil, err
	}
	res := &PromoteResult{Production: rec.Clone()}
	res.Warnings = append(res.Warnings, o.installCandidate(context.WithoutCancel(ctx), rec.Version)...)

	logging.Ctx(ctx).Info().
		Int("version", rec.Version).
		Str("deployment_id", rec.DeploymentID).
		Str("endpoint", rec.Endpoint).
		Msg("Test deployment promoted to production")
	o.emit(ctx, events.TypePromoted, rec, nil)

	return res, nil
}

// promoteInPlace swaps production's model to the test model and verifies it
func (o *Orchestrator) promoteInPlace(ctx context.Context, prod, test *models.DeploymentRecord) (*PromoteResult, error) {
	log := logging.Ctx(ctx).With().
		Int("version", test.Version).
		Str("deployment_id", prod.DeploymentID).
		Str("model_id", test.ModelID).
		Logger()

	abort := func(stage string, outcome verifyOutcome, cause error) error {
		perr := &PromotionError{
			Stage:             stage,
			DeploymentID:      prod.DeploymentID,
			ProductionVersion: prod.Version,
			TestVersion:       test.Version,
			ExpectedModelID:   test.ModelID,
			ActualModelID:     outcome.Actual,
			Attempts:          outcome.Attempts,
			Err:               cause,
		}
		log.Error().Err(perr).Msg("Promotion aborted; production and test deployment unchanged")
		o.emit(ctx, events.TypePromotionAborted, test, perr)
		return perr
	}

	log.Info().Int("from_version", prod.Version).Msg("Updating production deployment model")
	if err := o.client.UpdateDeploymentModel(ctx, prod.DeploymentID, test.ModelID); err != nil {
		// The request may still have reached the service. Report what it serves.
		seen := o.readBackOnce(ctx, prod.DeploymentID)
		if seen.Actual == test.ModelID {
			log.Warn().Msg("Production already serves the test model despite the update error; promote again to record it")
		}
		return nil, abort(StageUpdate, seen, err)
	}

	outcome := o.verifySwap(ctx, prod.DeploymentID, test.ModelID)
	if !outcome.Verified {
		return nil, abort(StageVerify, outcome, outcome.Err)
	}
	log.Info().Int("attempts", outcome.Attempts).Msg("Production deployment verified on new model")

	// The swap is live. Finish even if the caller gives up now.
	ctx = context.WithoutCancel(ctx)
	now := o.now()

	replaced := prod.Clone()
	replaced.Status = models.StatusReplaced
	replaced.ReplacedAt = &now

	promoted := &models.DeploymentRecord{
		DeploymentID: prod.DeploymentID,
		Endpoint:     prod.Endpoint,
		ModelID:      test.ModelID,
		Version:      test.Version,
		Status:       models.StatusProduction,
		CreatedAt:    test.CreatedAt,
		PromotedAt:   &now,
		Description:  test.Description,
		DisplayName:  prod.DisplayName,
		Shape:        prod.Shape,
		OCPUs:        prod.OCPUs,
		MemoryGB:     prod.MemoryGB,
	}

	next := o.state.Clone()
	next.AppendHistory(replaced)
	next.ProductionDeployment = promoted
	next.TestDeployment = nil
	next.CurrentVersion = test.Version
	next.AppendHistory(promoted)

	if err := o.commit(ctx, next); err != nil {
		log.Error().Err(err).
			Str("test_deployment_id", test.DeploymentID).
			Msg("Production serves the new model but state was not saved; test deployment kept, run repair")
		return nil, fmt.Errorf("production %s now serves %s (v%d) but state was not saved, run repair: %w",
			prod.DeploymentID, test.ModelID, test.Version, err)
	}

	res := &PromoteResult{
		Production:     promoted.Clone(),
		Replaced:       replaced,
		InPlace:        true,
		VerifyAttempts: outcome.Attempts,
	}
	res.Warnings = append(res.Warnings, o.installCandidate(ctx, promoted.Version)...)

	if err := o.client.DeleteDeployment(ctx, test.DeploymentID); err != nil && !errors.Is(err, hosting.ErrDeploymentNotFound) {
		log.Warn().Err(err).Str("test_deployment_id", test.DeploymentID).Msg("Could not delete test deployment")
		res.Warnings = append(res.Warnings, fmt.Sprintf("delete test deployment %s: %v", test.DeploymentID, err))
	} else {
		log.Info().Str("test_deployment_id", test.DeploymentID).Msg("Test deployment deleted")
	}

	log.Info().Str("endpoint", promoted.Endpoint).Msgf("v%d is now in production", promoted.Version)
	o.emit(ctx, events.TypePromoted, promoted, nil)

	return res, nil
}

type verifyOutcome struct {
	Verified bool
	Attempts int
	Actual   string
	Err      error
}

// verifySwap reads the deployment back until it serves want or the timeout
// elapses. At least one read is always made.
func (o *Orchestrator) verifySwap(ctx context.Context, deploymentID, want string) verifyOutcome {
	cfg := o.cfg.Verify
	start := o.clock.Now()
	deadline := start.Add(cfg.Timeout)
	log := logging.Ctx(ctx).With().Str("deployment_id", deploymentID).Str("expected_model_id", want).Logger()

	var out verifyOutcome
	defer func() { metrics.RecordVerification(o.clock.Now().Sub(start), out.Verified) }()

	sleep(ctx, o.clock, cfg.InitialDelay)

	interval := cfg.Interval
	for {
		out.Attempts++
		metrics.RecordVerifyAttempt()

		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ReadTimeout)
		got, err := o.client.GetDeploymentModel(readCtx, deploymentID)
		cancel()

		switch {
		case err != nil:
			out.Err = fmt.Errorf("read back deployment: %w", err)
			log.Debug().Err(err).Int("attempt", out.Attempts).Msg("Verification read failed")
			if errors.Is(err, hosting.ErrDeploymentNotFound) {
				return out
			}
		case got == want:
			out.Actual = got
			out.Err = nil
			out.Verified = true
			return out
		default:
			out.Actual = got
			out.Err = fmt.Errorf("%w: serving %s, expected %s", ErrModelMismatch, got, want)
			log.Debug().Str("actual_model_id", got).Int("attempt", out.Attempts).Msg("Update not applied yet")
		}

		if ctx.Err() != nil {
			out.Err = errors.Join(out.Err, ctx.Err())
			return out
		}
		remaining := deadline.Sub(o.clock.Now())
		if remaining <= 0 {
			out.Err = fmt.Errorf("not verified within %s: %w", cfg.Timeout, out.Err)
			return out
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}
		sleep(ctx, o.clock, wait)
		interval = nextInterval(interval, cfg)
	}
}

func nextInterval(cur time.Duration, cfg VerifyConfig) time.Duration {
	next := time.Duration(float64(cur) * cfg.Multiplier)
	if next > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return next
}

// readBackOnce makes a single read-back for diagnostics
func (o *Orchestrator) readBackOnce(ctx context.Context, deploymentID string) verifyOutcome {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Verify.ReadTimeout)
	defer cancel()

	got, err := o.client.GetDeploymentModel(readCtx, deploymentID)
	if err != nil {
		return verifyOutcome{Attempts: 1}
	}
	return verifyOutcome{Attempts: 1, Actual: got}
}
