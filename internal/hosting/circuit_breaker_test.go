// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package hosting

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// stubClient fails every call with err. With partial, CreateDeployment
// also returns the deployment it created.
type stubClient struct {
	err     error
	partial bool
	calls   int
}

func (s *stubClient) SaveArtifact(context.Context, ArtifactRequest) (string, error) {
	s.calls++
	return "model-1", s.err
}

func (s *stubClient) CreateDeployment(_ context.Context, modelID, displayName string, _ ComputeConfig) (*Deployment, error) {
	s.calls++
	if s.err != nil {
		if s.partial {
			return &Deployment{ID: "dep-1", ModelID: modelID, LifecycleState: StateFailed}, s.err
		}
		return nil, s.err
	}
	return &Deployment{ID: "dep-1", ModelID: modelID, DisplayName: displayName}, nil
}

func (s *stubClient) GetDeploymentModel(context.Context, string) (string, error) {
	s.calls++
	return "model-1", s.err
}

func (s *stubClient) UpdateDeploymentModel(context.Context, string, string) error {
	s.calls++
	return s.err
}

func (s *stubClient) DeleteDeployment(context.Context, string) error {
	s.calls++
	return s.err
}

func testBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 3,
	}
}

func TestCircuitBreakerClient_PassesThrough(t *testing.T) {
	stub := &stubClient{}
	cbc := NewCircuitBreakerClient(stub, testBreakerConfig("test-pass"))
	ctx := context.Background()

	if id, err := cbc.SaveArtifact(ctx, ArtifactRequest{}); err != nil || id != "model-1" {
		t.Errorf("SaveArtifact = %q, %v", id, err)
	}
	dep, err := cbc.CreateDeployment(ctx, "model-1", "v1", DefaultComputeConfig())
	if err != nil || dep.ID != "dep-1" {
		t.Errorf("CreateDeployment = %+v, %v", dep, err)
	}
	if id, err := cbc.GetDeploymentModel(ctx, "dep-1"); err != nil || id != "model-1" {
		t.Errorf("GetDeploymentModel = %q, %v", id, err)
	}
	if err := cbc.UpdateDeploymentModel(ctx, "dep-1", "model-2"); err != nil {
		t.Errorf("UpdateDeploymentModel: %v", err)
	}
	if err := cbc.DeleteDeployment(ctx, "dep-1"); err != nil {
		t.Errorf("DeleteDeployment: %v", err)
	}
	if stub.calls != 5 {
		t.Errorf("expected 5 delegated calls, got %d", stub.calls)
	}
}

func TestCircuitBreakerClient_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubClient{err: errors.New("service unavailable")}
	cbc := NewCircuitBreakerClient(stub, testBreakerConfig("test-open"))
	ctx := context.Background()

	if cbc.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed, got %v", cbc.State())
	}
	for i := 0; i < 3; i++ {
		_ = cbc.DeleteDeployment(ctx, "dep") //nolint:errcheck // driving failures
	}
	if cbc.State() != gobreaker.StateOpen {
		t.Fatalf("expected open after 3 failures, got %v", cbc.State())
	}

	err := cbc.UpdateDeploymentModel(ctx, "dep", "m")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if stub.calls != 3 {
		t.Errorf("open circuit must not reach the client, got %d calls", stub.calls)
	}
}

func TestCircuitBreakerClient_NotFoundDoesNotTrip(t *testing.T) {
	stub := &stubClient{err: ErrDeploymentNotFound}
	cbc := NewCircuitBreakerClient(stub, testBreakerConfig("test-notfound"))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := cbc.DeleteDeployment(ctx, "gone"); !errors.Is(err, ErrDeploymentNotFound) {
			t.Fatalf("expected ErrDeploymentNotFound, got %v", err)
		}
	}
	if cbc.State() != gobreaker.StateClosed {
		t.Errorf("not-found answers must keep the circuit closed, got %v", cbc.State())
	}
}

func TestStateToString(t *testing.T) {
	tests := map[gobreaker.State]string{
		gobreaker.StateClosed:   "closed",
		gobreaker.StateHalfOpen: "half-open",
		gobreaker.StateOpen:     "open",
	}
	for state, want := range tests {
		if got := stateToString(state); got != want {
			t.Errorf("stateToString(%v) = %q, want %q", state, got, want)
		}
	}
}

func TestCircuitBreakerClient_CreateDeploymentKeepsFailedDeployment(t *testing.T) {
	stub := &stubClient{err: errors.New("deployment dep-1 failed to provision"), partial: true}
	cbc := NewCircuitBreakerClient(stub, testBreakerConfig("test-partial"))

	dep, err := cbc.CreateDeployment(context.Background(), "model-1", "v1", DefaultComputeConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if dep == nil || dep.ID != "dep-1" {
		t.Errorf("failed deployment should be returned with the error, got %+v", dep)
	}
}
