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
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/hosting"
	"github.com/tomtom215/recdeploy/internal/hosting/hostingtest"
	"github.com/tomtom215/recdeploy/internal/models"
)

// Empty state: stage v1, promote by relabeling.
func TestPromote_FirstPromotion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	test := h.stage()
	if test.Version != 1 || test.Status != models.StatusTest {
		t.Fatalf("expected TEST v1, got %+v", test)
	}

	res, err := h.orch.Promote(ctx, PromoteOptions{})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.InPlace {
		t.Error("first promotion must not swap remotely")
	}

	state := h.orch.State()
	assertInvariants(t, state)
	prod := state.ProductionDeployment
	if prod == nil || prod.Version != 1 || prod.Status != models.StatusProduction {
		t.Fatalf("expected PRODUCTION v1, got %+v", prod)
	}
	if prod.DeploymentID != test.DeploymentID || prod.Endpoint != test.Endpoint || prod.ModelID != test.ModelID {
		t.Errorf("production should be the test deployment, got %+v", prod)
	}
	if prod.PromotedAt == nil {
		t.Error("promoted_at not set")
	}
	if state.TestDeployment != nil || state.CurrentVersion != 1 {
		t.Errorf("expected test cleared and current_version 1, got %+v", state)
	}
	if n := h.client.CallCount(hostingtest.OpUpdateModel) + h.client.CallCount(hostingtest.OpDeleteDeployment); n != 0 {
		t.Errorf("first promotion made %d remote update/delete calls", n)
	}
	if !h.client.HasDeployment(test.DeploymentID) {
		t.Error("promoted deployment must not be deleted")
	}
	if !reflect.DeepEqual(h.persisted(), state) {
		t.Error("persisted state differs from in-memory state")
	}
	if got := readFile(t, filepath.Join(h.artifactDir, "model.pkl")); got != "weights-v2" {
		t.Errorf("live artifact should hold the promoted model, got %q", got)
	}
}

// Production v1: stage v2, swap production in place.
func TestPromote_InPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.importProduction()
	test := h.stage()

	res, err := h.orch.Promote(ctx, PromoteOptions{ExpectedTestDeploymentID: test.DeploymentID})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if !res.InPlace || len(res.Warnings) != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	state := h.orch.State()
	assertInvariants(t, state)

	prod := state.ProductionDeployment
	if prod.DeploymentID != prodDeploymentID || prod.Endpoint != prodEndpoint {
		t.Errorf("production must keep its deployment id and endpoint, got %s %s", prod.DeploymentID, prod.Endpoint)
	}
	if prod.ModelID != test.ModelID || prod.Version != 2 || prod.Description != test.Description {
		t.Errorf("production should carry the test model, got %+v", prod)
	}
	if state.CurrentVersion != 2 || state.TestDeployment != nil {
		t.Errorf("expected current_version 2 and no test, got %d %+v", state.CurrentVersion, state.TestDeployment)
	}

	var replaced *models.DeploymentRecord
	for _, r := range state.DeploymentHistory {
		if r.Status == models.StatusReplaced {
			replaced = r
		}
	}
	if replaced == nil {
		t.Fatal("old production not recorded as REPLACED in history")
	}
	if replaced.DeploymentID != prodDeploymentID || replaced.ModelID != prodModelID || replaced.Version != 1 || replaced.ReplacedAt == nil {
		t.Errorf("unexpected REPLACED record %+v", replaced)
	}

	if got, _ := h.client.DeploymentModel(prodDeploymentID); got != test.ModelID {
		t.Errorf("remote production serves %s, expected %s", got, test.ModelID)
	}
	if h.client.HasDeployment(test.DeploymentID) {
		t.Error("test deployment should be deleted after promotion")
	}
	if got := readFile(t, filepath.Join(h.artifactDir, "model.pkl")); got != "weights-v2" {
		t.Errorf("live artifact should hold the promoted model, got %q", got)
	}
	if got := readFile(t, filepath.Join(h.resultsDir, "metrics.json")); got != `{"map_at_10": 0.21}` {
		t.Errorf("live results should hold the promoted metrics, got %q", got)
	}
	if !reflect.DeepEqual(h.persisted(), state) {
		t.Error("persisted state differs from in-memory state")
	}

	want := []events.Type{events.TypeDeploymentImported, events.TypeTestStaged, events.TypePromoted}
	if got := h.published.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

// The remote update is accepted but never applied.
func TestPromote_VerificationMismatchAborts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.importProduction()
	test := h.stage()

	before := h.orch.State()
	h.client.IgnoreUpdates = true

	_, err := h.orch.Promote(ctx, PromoteOptions{})
	if !errors.Is(err, ErrPromotionAborted) {
		t.Fatalf("expected ErrPromotionAborted, got %v", err)
	}
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch cause, got %v", err)
	}

	var perr *PromotionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PromotionError, got %T", err)
	}
	if perr.Stage != StageVerify || perr.ExpectedModelID != test.ModelID || perr.ActualModelID != prodModelID {
		t.Errorf("unexpected diagnostics %+v", perr)
	}
	if perr.Attempts < 2 {
		t.Errorf("expected repeated read-backs, got %d", perr.Attempts)
	}
	for _, want := range []string{test.ModelID, prodModelID, "not deleted"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}

	after := h.orch.State()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("state changed by aborted promotion\nbefore: %+v\nafter:  %+v", before, after)
	}
	if !reflect.DeepEqual(h.persisted(), before) {
		t.Error("persisted state changed by aborted promotion")
	}
	if n := h.client.CallCount(hostingtest.OpDeleteDeployment); n != 0 {
		t.Errorf("aborted promotion issued %d deletes", n)
	}
	if !h.client.HasDeployment(test.DeploymentID) {
		t.Error("test deployment must survive an aborted promotion")
	}

	types := h.published.Types()
	if types[len(types)-1] != events.TypePromotionAborted {
		t.Errorf("expected promotion_aborted event last, got %v", types)
	}
}

func TestPromote_UpdateErrorAborts(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	test := h.stage()
	before := h.orch.State()

	h.client.SetError(hostingtest.OpUpdateModel, errors.New("400 bad request"))

	_, err := h.orch.Promote(context.Background(), PromoteOptions{})
	var perr *PromotionError
	if !errors.As(err, &perr) || perr.Stage != StageUpdate {
		t.Fatalf("expected update-stage PromotionError, got %v", err)
	}
	if perr.ActualModelID != prodModelID {
		t.Errorf("expected read-back to report %s, got %q", prodModelID, perr.ActualModelID)
	}
	if !reflect.DeepEqual(h.orch.State(), before) {
		t.Error("state changed after failed update")
	}
	if h.client.CallCount(hostingtest.OpDeleteDeployment) != 0 || !h.client.HasDeployment(test.DeploymentID) {
		t.Error("test deployment touched after failed update")
	}
}

func TestPromote_StaleReadsThenVerified(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()
	h.client.StaleReads = 2

	res, err := h.orch.Promote(context.Background(), PromoteOptions{})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.VerifyAttempts != 3 {
		t.Errorf("expected 3 read-backs, got %d", res.VerifyAttempts)
	}

	want := []time.Duration{90 * time.Second, 10 * time.Second, 20 * time.Second}
	if got := h.clock.Waits(); !reflect.DeepEqual(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestPromote_TransientReadErrorsRetried(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()
	h.client.GetErrors = []error{errors.New("503"), errors.New("timeout")}

	res, err := h.orch.Promote(context.Background(), PromoteOptions{})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if res.VerifyAttempts != 3 {
		t.Errorf("expected 3 read-backs, got %d", res.VerifyAttempts)
	}
}

func TestPromote_ProductionMissingAbortsImmediately(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()
	h.client.GetErrors = []error{hosting.ErrDeploymentNotFound}

	_, err := h.orch.Promote(context.Background(), PromoteOptions{})
	var perr *PromotionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PromotionError, got %v", err)
	}
	if perr.Attempts != 1 || !errors.Is(err, hosting.ErrDeploymentNotFound) {
		t.Errorf("expected single attempt with ErrDeploymentNotFound, got %d %v", perr.Attempts, err)
	}
}

func TestPromote_TimeoutBoundsReadBacks(t *testing.T) {
	cfg := testConfig()
	cfg.Verify = VerifyConfig{
		InitialDelay: 90 * time.Second,
		Interval:     10 * time.Second,
		MaxInterval:  time.Minute,
		Multiplier:   2,
		Timeout:      2 * time.Minute,
		ReadTimeout:  time.Second,
	}
	h := newHarnessWithConfig(t, cfg)
	h.importProduction()
	h.stage()
	h.client.IgnoreUpdates = true

	_, err := h.orch.Promote(context.Background(), PromoteOptions{})
	var perr *PromotionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PromotionError, got %v", err)
	}
	// Reads at 90s, 100s and 120s
	if perr.Attempts != 3 {
		t.Errorf("expected 3 read-backs, got %d", perr.Attempts)
	}
	if !strings.Contains(err.Error(), "not verified within 2m0s") {
		t.Errorf("expected timeout in error, got %v", err)
	}
}

func TestPromote_CanceledContextStillReadsBack(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()
	h.client.IgnoreUpdates = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Promote(ctx, PromoteOptions{})
	var perr *PromotionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PromotionError, got %v", err)
	}
	if perr.Attempts != 1 {
		t.Errorf("expected exactly one read-back after cancellation, got %d", perr.Attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in cause, got %v", err)
	}
}

func TestPromote_CanceledContextCompletesVerifiedSwap(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	test := h.stage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.orch.Promote(ctx, PromoteOptions{}); err != nil {
		t.Fatalf("verified swap should be recorded despite cancellation: %v", err)
	}
	if h.persisted().ProductionDeployment.ModelID != test.ModelID {
		t.Error("verified swap not persisted")
	}
}

func TestPromote_DeleteFailureIsWarning(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	test := h.stage()
	h.client.SetError(hostingtest.OpDeleteDeployment, errors.New("409 conflict"))

	res, err := h.orch.Promote(context.Background(), PromoteOptions{})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], test.DeploymentID) {
		t.Errorf("expected one warning naming the test deployment, got %v", res.Warnings)
	}
	state := h.orch.State()
	if state.CurrentVersion != 2 || state.TestDeployment != nil {
		t.Errorf("promotion should have succeeded, got %+v", state)
	}
}

func TestPromote_RetrainingAfterStageDoesNotLeakIntoLive(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()

	// Next training run finishes before v2 is promoted
	h.train("weights-v3", `{"map_at_10": 0.25}`)

	if _, err := h.orch.Promote(context.Background(), PromoteOptions{}); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if got := readFile(t, filepath.Join(h.artifactDir, "model.pkl")); got != "weights-v2" {
		t.Errorf("live artifact should hold the staged v2 model, got %q", got)
	}
}

func TestPromote_AbortLeavesLiveArtifacts(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()
	h.client.IgnoreUpdates = true

	if _, err := h.orch.Promote(context.Background(), PromoteOptions{}); err == nil {
		t.Fatal("expected promotion error")
	}
	if got := readFile(t, filepath.Join(h.artifactDir, "model.pkl")); got != "weights-v1" {
		t.Errorf("aborted promotion changed the live artifact to %q", got)
	}
	if _, err := os.Stat(h.backups.CandidatePath(2)); err != nil {
		t.Errorf("kept artifacts should survive an aborted promotion: %v", err)
	}
}

func TestPromote_MissingCandidateIsWarning(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	h.stage()
	if err := h.backups.DiscardCandidate(2); err != nil {
		t.Fatal(err)
	}

	res, err := h.orch.Promote(context.Background(), PromoteOptions{})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "v2") {
		t.Errorf("expected one warning about v2 artifacts, got %v", res.Warnings)
	}
	if h.orch.State().CurrentVersion != 2 {
		t.Error("promotion should still be recorded")
	}
	if got := readFile(t, filepath.Join(h.artifactDir, "model.pkl")); got != "weights-v1" {
		t.Errorf("live artifact changed to %q", got)
	}
}

func TestPromote_SaveFailureKeepsTestDeployment(t *testing.T) {
	h := newHarness(t)
	h.importProduction()
	test := h.stage()
	before := h.orch.State()
	h.store.failSave = true

	_, err := h.orch.Promote(context.Background(), PromoteOptions{})
	if err == nil || !strings.Contains(err.Error(), "run repair") {
		t.Fatalf("expected repair hint, got %v", err)
	}
	if errors.Is(err, ErrPromotionAborted) {
		t.Error("a verified swap is not an aborted promotion")
	}
	if !reflect.DeepEqual(h.orch.State(), before) {
		t.Error("in-memory state changed although save failed")
	}
	if !h.client.HasDeployment(test.DeploymentID) {
		t.Error("test deployment must be kept when state could not be saved")
	}
}

func TestPromote_Preconditions(t *testing.T) {
	t.Run("no test staged", func(t *testing.T) {
		h := newHarness(t)
		h.importProduction()
		_, err := h.orch.Promote(context.Background(), PromoteOptions{})
		if !errors.Is(err, ErrNoTestDeployment) {
			t.Errorf("expected ErrNoTestDeployment, got %v", err)
		}
		if len(h.client.Calls()) != 0 {
			t.Errorf("precondition failure made remote calls: %v", h.client.Calls())
		}
	})

	t.Run("test id mismatch", func(t *testing.T) {
		h := newHarness(t)
		h.stage()
		calls := len(h.client.Calls())
		_, err := h.orch.Promote(context.Background(), PromoteOptions{ExpectedTestDeploymentID: "someone-else"})
		if !errors.Is(err, ErrTestIDMismatch) {
			t.Errorf("expected ErrTestIDMismatch, got %v", err)
		}
		if len(h.client.Calls()) != calls {
			t.Error("precondition failure made remote calls")
		}
	})

	t.Run("version skew", func(t *testing.T) {
		h := newHarness(t)
		h.importProduction()
		h.stage()
		h.client.SeedDeployment("other-prod", "other-model", "https://hosting.test/other/predict")
		if _, err := h.orch.ImportExisting(context.Background(), ImportRequest{
			DeploymentID: "other-prod",
			ModelID:      "other-model",
			Endpoint:     "https://hosting.test/other/predict",
			Version:      5,
			Overwrite:    true,
		}); err != nil {
			t.Fatalf("ImportExisting: %v", err)
		}

		calls := len(h.client.Calls())
		_, err := h.orch.Promote(context.Background(), PromoteOptions{})
		if !errors.Is(err, ErrVersionSkew) {
			t.Errorf("expected ErrVersionSkew, got %v", err)
		}
		if len(h.client.Calls()) != calls {
			t.Error("precondition failure made remote calls")
		}
	})
}

// Consecutive promotions keep the slot invariants and grow the version by one.
func TestPromote_Sequence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for v := 1; v <= 4; v++ {
		h.stage()
		assertInvariants(t, h.orch.State())
		if _, err := h.orch.Promote(ctx, PromoteOptions{}); err != nil {
			t.Fatalf("Promote v%d: %v", v, err)
		}
		state := h.orch.State()
		assertInvariants(t, state)
		if state.CurrentVersion != v {
			t.Fatalf("expected current_version %d, got %d", v, state.CurrentVersion)
		}
	}

	state := h.orch.State()
	// v1 became production by relabeling; v2..v4 were swapped into its deployment
	first := state.DeploymentHistory[1]
	if state.ProductionDeployment.DeploymentID != first.DeploymentID {
		t.Errorf("production deployment changed across in-place promotions")
	}
	replaced := 0
	for _, r := range state.DeploymentHistory {
		if r.Status == models.StatusReplaced {
			replaced++
		}
	}
	if replaced != 3 {
		t.Errorf("expected 3 REPLACED history entries, got %d", replaced)
	}
}
