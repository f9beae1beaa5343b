// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/recdeploy/internal/backup"
	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/hosting"
	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
	"github.com/tomtom215/recdeploy/internal/models"
	"github.com/tomtom215/recdeploy/internal/statestore"
)

// Backups is the part of backup.Manager the orchestrator uses
type Backups interface {
	CreateBackup(ctx context.Context, version *int, prod *models.DeploymentRecord) (*models.BackupMetadata, error)
	ListBackups() ([]*models.BackupMetadata, error)
	LatestForVersion(version int) (*models.BackupMetadata, error)
	RestoreFromBackup(ctx context.Context, meta *models.BackupMetadata, opts backup.RestoreOptions) (*backup.RestoreResult, error)

	SaveCandidate(ctx context.Context, version int, src backup.CandidateSource) (string, error)
	InstallCandidate(ctx context.Context, version int) (*backup.RestoreResult, error)
	DiscardCandidate(version int) error
}

var _ Backups = (*backup.Manager)(nil)

// Orchestrator runs deployment operations against one state store.
// Operations are serialized.
type Orchestrator struct {
	mu sync.Mutex

	store   statestore.Store
	client  hosting.Client
	backups Backups
	events  events.Publisher
	clock   Clock
	cfg     Config

	state *models.DeploymentState
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithBackups enables defensive backups and artifact rollback
func WithBackups(b Backups) Option {
	return func(o *Orchestrator) { o.backups = b }
}

// WithEvents publishes lifecycle events
func WithEvents(p events.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithClock replaces the wall clock (tests)
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New loads the state from store. client may be nil for commands that only
// touch local state; remote operations then fail with ErrNoHostingClient.
func New(ctx context.Context, store statestore.Store, client hosting.Client, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if err := cfg.Verify.Validate(); err != nil {
		return nil, err
	}
	if cfg.Compute == (hosting.ComputeConfig{}) {
		cfg.Compute = hosting.DefaultComputeConfig()
	}

	o := &Orchestrator{
		store:  store,
		client: client,
		events: events.NopPublisher{},
		clock:  realClock{},
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(o)
	}

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load deployment state: %w", err)
	}
	o.state = state
	o.updateGauges()

	logging.Debug().
		Int("current_version", state.CurrentVersion).
		Bool("production", state.ProductionDeployment != nil).
		Bool("test", state.TestDeployment != nil).
		Msg("Deployment state loaded")

	return o, nil
}

// State returns a copy of the current state
func (o *Orchestrator) State() *models.DeploymentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// NextVersion returns the version the next staged model will get
func (o *Orchestrator) NextVersion() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.NextVersion()
}

// begin tags ctx for one operation and returns a func recording its outcome
func (o *Orchestrator) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	ctx = logging.ContextWithOperation(ctx, op)
	start := time.Now()
	return ctx, func(err error) {
		if isPrecondition(err) {
			metrics.RecordRejected(op)
			return
		}
		metrics.RecordOperation(op, time.Since(start), err)
	}
}

// commit validates and persists next, then installs it as the current state
func (o *Orchestrator) commit(ctx context.Context, next *models.DeploymentState) error {
	if err := next.Validate(); err != nil {
		return err
	}
	err := o.store.Save(ctx, next)
	metrics.RecordStateSave(o.cfg.StateBackend, err)
	if err != nil {
		return fmt.Errorf("persist deployment state: %w", err)
	}
	o.state = next
	o.updateGauges()
	return nil
}

func (o *Orchestrator) updateGauges() {
	metrics.SetSlots(o.state.CurrentVersion, o.state.TestDeployment != nil)
}

func (o *Orchestrator) now() time.Time {
	return o.clock.Now().UTC()
}

// discardCandidate drops the kept training output of a version that will
// never be promoted
func (o *Orchestrator) discardCandidate(ctx context.Context, version int) {
	if o.backups == nil {
		return
	}
	if err := o.backups.DiscardCandidate(version); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("version", version).Msg("Could not discard candidate artifacts")
	}
}

// installCandidate puts the promoted version's training output into the live
// directories. Problems are returned as warnings; production is already
// committed when this runs.
func (o *Orchestrator) installCandidate(ctx context.Context, version int) []string {
	if o.backups == nil {
		return nil
	}
	res, err := o.backups.InstallCandidate(ctx, version)
	switch {
	case errors.Is(err, backup.ErrCandidateNotFound):
		logging.Ctx(ctx).Warn().Int("version", version).Msg("No candidate artifacts kept for promoted version")
		return []string{fmt.Sprintf("no training output kept for v%d; live artifact directory not updated", version)}
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Int("version", version).Msg("Could not install promoted artifacts")
		return []string{fmt.Sprintf("install v%d artifacts into live directories: %v", version, err)}
	}
	return res.Warnings
}

func (o *Orchestrator) emit(ctx context.Context, t events.Type, rec *models.DeploymentRecord, cause error) {
	ev := events.New(t)
	ev.ProjectName = o.cfg.ProjectName
	if rec != nil {
		ev.Version = rec.Version
		ev.DeploymentID = rec.DeploymentID
		ev.ModelID = rec.ModelID
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	events.Emit(ctx, o.events, ev)
}

// Summary renders the current slots for operators
func (o *Orchestrator) Summary() string {
	o.mu.Lock()
	s := o.state.Clone()
	o.mu.Unlock()

	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s - Deployment Status\n%s\n", rule, o.cfg.ProjectName, rule)

	if p := s.ProductionDeployment; p != nil {
		fmt.Fprintf(&b, "\nPRODUCTION (v%d)\n", p.Version)
		fmt.Fprintf(&b, "   Deployment: %s\n", p.DeploymentID)
		fmt.Fprintf(&b, "   Model: %s\n", p.ModelID)
		fmt.Fprintf(&b, "   Endpoint: %s\n", p.Endpoint)
		fmt.Fprintf(&b, "   Deployed: %s\n", formatTime(&p.CreatedAt))
		if p.PromotedAt != nil {
			fmt.Fprintf(&b, "   Promoted: %s\n", formatTime(p.PromotedAt))
		}
		if p.RepairedAt != nil {
			fmt.Fprintf(&b, "   Repaired: %s\n", formatTime(p.RepairedAt))
		}
	} else {
		b.WriteString("\nPRODUCTION: Not deployed\n")
	}

	if t := s.TestDeployment; t != nil {
		fmt.Fprintf(&b, "\nTEST (v%d)\n", t.Version)
		fmt.Fprintf(&b, "   Deployment: %s\n", t.DeploymentID)
		fmt.Fprintf(&b, "   Model: %s\n", t.ModelID)
		fmt.Fprintf(&b, "   Endpoint: %s\n", t.Endpoint)
		fmt.Fprintf(&b, "   Created: %s\n", formatTime(&t.CreatedAt))
	} else {
		b.WriteString("\nTEST: No test deployment\n")
	}

	fmt.Fprintf(&b, "\nCurrent Version: v%d\n", s.CurrentVersion)
	fmt.Fprintf(&b, "Total Deployments: %d\n", len(s.DeploymentHistory))
	b.WriteString(rule + "\n")
	return b.String()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}
