// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/recdeploy/internal/backup"
	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/hosting/hostingtest"
	"github.com/tomtom215/recdeploy/internal/models"
	"github.com/tomtom215/recdeploy/internal/statestore"
)

// fakeClock advances instantly on every wait and records the waits
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// recordingPublisher keeps every published event type
type recordingPublisher struct {
	mu    sync.Mutex
	types []events.Type
}

func (p *recordingPublisher) Publish(_ context.Context, ev *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, ev.Type)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Type(nil), p.types...)
}

// flakyStore fails Save while failSave is set
type flakyStore struct {
	statestore.Store
	failSave bool
}

func (s *flakyStore) Save(ctx context.Context, state *models.DeploymentState) error {
	if s.failSave {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, state)
}

type harness struct {
	t           *testing.T
	orch        *Orchestrator
	client      *hostingtest.FakeClient
	store       *flakyStore
	statePath   string
	clock       *fakeClock
	published   *recordingPublisher
	backups     *backup.Manager
	artifactDir string
	resultsDir  string

	// Training output staged by h.stage, outside the live directories
	trainingArtifactDir string
	trainingResultsDir  string
}

const (
	prodDeploymentID = "prod-deployment"
	prodModelID      = "prod-model-v1"
	prodEndpoint     = "https://hosting.test/prod-deployment/predict"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig())
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProjectName = "Product Recommender"
	return cfg
}

func newHarnessWithConfig(t *testing.T, cfg Config) *harness {
	t.Helper()
	dir := t.TempDir()

	h := &harness{
		t:           t,
		client:      hostingtest.NewFakeClient(),
		clock:       newFakeClock(),
		published:   &recordingPublisher{},
		statePath:   filepath.Join(dir, "backups", statestore.DefaultStateFileName),
		artifactDir: filepath.Join(dir, "work", backup.ArtifactDirName),
		resultsDir:  filepath.Join(dir, "work", backup.ResultsDirName),

		trainingArtifactDir: filepath.Join(dir, "training", "model_artifacts"),
		trainingResultsDir:  filepath.Join(dir, "training", "results"),
	}
	writeFile(t, filepath.Join(h.artifactDir, "model.pkl"), "weights-v1")
	writeFile(t, filepath.Join(h.resultsDir, "metrics.json"), `{"map_at_10": 0.18}`)
	h.train("weights-v2", `{"map_at_10": 0.21}`)

	fs, err := statestore.NewFileStore(h.statePath)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h.store = &flakyStore{Store: fs}

	h.backups, err = backup.NewManager(&backup.Config{
		BackupRoot:  filepath.Join(dir, "backups"),
		ArtifactDir: h.artifactDir,
		ResultsDir:  h.resultsDir,
		ProjectName: cfg.ProjectName,
		Retention:   backup.DefaultRetentionPolicy(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	h.orch, err = New(context.Background(), h.store, h.client, cfg,
		WithClock(h.clock),
		WithEvents(h.published),
		WithBackups(h.backups),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

// importProduction records a seeded production deployment as v1
func (h *harness) importProduction() {
	h.t.Helper()
	h.client.SeedDeployment(prodDeploymentID, prodModelID, prodEndpoint)
	if _, err := h.orch.ImportExisting(context.Background(), ImportRequest{
		DeploymentID: prodDeploymentID,
		ModelID:      prodModelID,
		Endpoint:     prodEndpoint,
		Version:      1,
	}); err != nil {
		h.t.Fatalf("ImportExisting: %v", err)
	}
}

// train writes a new training output, leaving the live directories alone
func (h *harness) train(weights, metrics string) {
	h.t.Helper()
	writeFile(h.t, filepath.Join(h.trainingArtifactDir, "model.pkl"), weights)
	writeFile(h.t, filepath.Join(h.trainingResultsDir, "metrics.json"), metrics)
}

func (h *harness) stageRequest() StageRequest {
	return StageRequest{
		ArtifactDir: h.trainingArtifactDir,
		ResultsDir:  h.trainingResultsDir,
		NumUsers:    12500,
		NumProducts: 840,
	}
}

func (h *harness) stage() *models.DeploymentRecord {
	h.t.Helper()
	rec, err := h.orch.StageTest(context.Background(), h.stageRequest())
	if err != nil {
		h.t.Fatalf("StageTest: %v", err)
	}
	return rec
}

// persisted reloads the state file from disk
func (h *harness) persisted() *models.DeploymentState {
	h.t.Helper()
	fs, err := statestore.NewFileStore(h.statePath)
	if err != nil {
		h.t.Fatalf("NewFileStore: %v", err)
	}
	state, err := fs.Load(context.Background())
	if err != nil {
		h.t.Fatalf("Load: %v", err)
	}
	return state
}

// assertInvariants checks the slot and version invariants of s
func assertInvariants(t *testing.T, s *models.DeploymentState) {
	t.Helper()
	if err := s.Validate(); err != nil {
		t.Fatalf("state invalid: %v", err)
	}
	if s.ProductionDeployment != nil && s.CurrentVersion != s.ProductionDeployment.Version {
		t.Errorf("current_version %d != production version %d", s.CurrentVersion, s.ProductionDeployment.Version)
	}
}
