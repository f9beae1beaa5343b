// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package hostingtest provides an in-memory hosting.Client for tests.
package hostingtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/recdeploy/internal/hosting"
)

// Operation names used for call recording and fault injection
const (
	OpSaveArtifact     = "SaveArtifact"
	OpCreateDeployment = "CreateDeployment"
	OpGetModel         = "GetDeploymentModel"
	OpUpdateModel      = "UpdateDeploymentModel"
	OpDeleteDeployment = "DeleteDeployment"
)

// Call is one recorded client invocation
type Call struct {
	Op           string
	DeploymentID string
	ModelID      string
}

// FakeClient is a thread-safe in-memory hosting service.
//
// Faults:
//   - Errors[op] makes every call of op fail
//   - IgnoreUpdates accepts UpdateDeploymentModel without applying it
//   - StaleReads makes the first N reads after an update return the old model
//   - GetErrors is consumed one entry per GetDeploymentModel call
//   - FailProvisioning creates deployments in FAILED state and returns them
//     with an error
type FakeClient struct {
	mu sync.Mutex

	models      map[string]hosting.ArtifactRequest
	deployments map[string]*hosting.Deployment
	calls       []Call
	seq         int

	Errors        map[string]error
	IgnoreUpdates bool
	StaleReads    int
	GetErrors     []error

	FailProvisioning bool

	pendingStale int
	previous     map[string]string
}

var _ hosting.Client = (*FakeClient)(nil)

// NewFakeClient returns an empty fake
func NewFakeClient() *FakeClient {
	return &FakeClient{
		models:      make(map[string]hosting.ArtifactRequest),
		deployments: make(map[string]*hosting.Deployment),
		Errors:      make(map[string]error),
		previous:    make(map[string]string),
	}
}

// SeedDeployment registers an existing deployment serving modelID
func (f *FakeClient) SeedDeployment(deploymentID, modelID, endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[modelID] = hosting.ArtifactRequest{DisplayName: modelID}
	f.deployments[deploymentID] = &hosting.Deployment{
		ID:             deploymentID,
		ModelID:        modelID,
		Endpoint:       endpoint,
		LifecycleState: hosting.StateActive,
	}
}

// SetError injects (or clears, with nil) a failure for op
func (f *FakeClient) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, op)
		return
	}
	f.Errors[op] = err
}

// DeploymentModel returns what the deployment actually serves
func (f *FakeClient) DeploymentModel(deploymentID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[deploymentID]
	if !ok {
		return "", false
	}
	return d.ModelID, true
}

// HasDeployment reports whether the deployment exists
func (f *FakeClient) HasDeployment(deploymentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.deployments[deploymentID]
	return ok
}

// Artifact returns the request a model was saved with
func (f *FakeClient) Artifact(modelID string) (hosting.ArtifactRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.models[modelID]
	return req, ok
}

// Calls returns a copy of every recorded call
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how often op was called
func (f *FakeClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeClient) record(op, deploymentID, modelID string) error {
	f.calls = append(f.calls, Call{Op: op, DeploymentID: deploymentID, ModelID: modelID})
	return f.Errors[op]
}

func (f *FakeClient) SaveArtifact(ctx context.Context, req hosting.ArtifactRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpSaveArtifact, "", ""); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.seq++
	id := fmt.Sprintf("model-%d", f.seq)
	f.models[id] = req
	return id, nil
}

func (f *FakeClient) CreateDeployment(ctx context.Context, modelID, displayName string, _ hosting.ComputeConfig) (*hosting.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateDeployment, "", modelID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := f.models[modelID]; !ok {
		return nil, fmt.Errorf("%w: %s", hosting.ErrModelNotFound, modelID)
	}
	f.seq++
	id := fmt.Sprintf("deployment-%d", f.seq)
	d := &hosting.Deployment{
		ID:             id,
		ModelID:        modelID,
		Endpoint:       "https://hosting.test/" + id + "/predict",
		DisplayName:    displayName,
		LifecycleState: hosting.StateActive,
	}
	f.deployments[id] = d
	if f.FailProvisioning {
		d.LifecycleState = hosting.StateFailed
		c := *d
		return &c, fmt.Errorf("deployment %s failed to provision", id)
	}
	c := *d
	return &c, nil
}

func (f *FakeClient) GetDeploymentModel(_ context.Context, deploymentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpGetModel, deploymentID, ""); err != nil {
		return "", err
	}
	if len(f.GetErrors) > 0 {
		err := f.GetErrors[0]
		f.GetErrors = f.GetErrors[1:]
		if err != nil {
			return "", err
		}
	}
	d, ok := f.deployments[deploymentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", hosting.ErrDeploymentNotFound, deploymentID)
	}
	if f.pendingStale > 0 {
		f.pendingStale--
		if prev, ok := f.previous[deploymentID]; ok {
			return prev, nil
		}
	}
	return d.ModelID, nil
}

func (f *FakeClient) UpdateDeploymentModel(_ context.Context, deploymentID, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpUpdateModel, deploymentID, modelID); err != nil {
		return err
	}
	d, ok := f.deployments[deploymentID]
	if !ok {
		return fmt.Errorf("%w: %s", hosting.ErrDeploymentNotFound, deploymentID)
	}
	if _, ok := f.models[modelID]; !ok {
		return fmt.Errorf("%w: %s", hosting.ErrModelNotFound, modelID)
	}
	if f.IgnoreUpdates {
		return nil
	}
	f.previous[deploymentID] = d.ModelID
	f.pendingStale = f.StaleReads
	d.ModelID = modelID
	return nil
}

func (f *FakeClient) DeleteDeployment(ctx context.Context, deploymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDeleteDeployment, deploymentID, ""); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := f.deployments[deploymentID]; !ok {
		return fmt.Errorf("%w: %s", hosting.ErrDeploymentNotFound, deploymentID)
	}
	delete(f.deployments, deploymentID)
	return nil
}
