// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package hosting is the boundary to the remote model-hosting service.
//
// Client is the narrow interface the orchestrator depends on. HTTPClient
// talks to a hosting gateway over JSON/REST, CircuitBreakerClient wraps any
// Client with sony/gobreaker, and package hostingtest provides an in-memory
// fake with fault injection.
//
// The service is eventually consistent: UpdateDeploymentModel returning nil
// only means the request was accepted. Callers must read the deployment back
// with GetDeploymentModel to learn whether the change took effect.
package hosting

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDeploymentNotFound is returned when the service has no such deployment
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrModelNotFound is returned when the service has no such model
	ErrModelNotFound = errors.New("model not found")
)

// Client is the set of hosting operations the deployment manager needs.
type Client interface {
	// SaveArtifact uploads a model artifact and returns the new model id
	SaveArtifact(ctx context.Context, req ArtifactRequest) (string, error)

	// CreateDeployment serves modelID on a new endpoint. When the deployment
	// was created but never became active, it is returned with the error so
	// the caller can delete it.
	CreateDeployment(ctx context.Context, modelID, displayName string, compute ComputeConfig) (*Deployment, error)

	// GetDeploymentModel returns the model id the deployment currently serves
	GetDeploymentModel(ctx context.Context, deploymentID string) (string, error)

	// UpdateDeploymentModel asks the deployment to serve modelID.
	// Acceptance does not mean the change has been applied.
	UpdateDeploymentModel(ctx context.Context, deploymentID, modelID string) error

	// DeleteDeployment tears the deployment down
	DeleteDeployment(ctx context.Context, deploymentID string) error
}

// ArtifactRequest describes a model artifact to upload
type ArtifactRequest struct {
	// ArtifactDir is the local directory holding the serialized model
	ArtifactDir string `json:"-"`

	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	ProjectName string `json:"project_name,omitempty"`

	// Free-form key/value metadata recorded with the model
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ComputeConfig sizes the serving instance
type ComputeConfig struct {
	Shape    string `json:"shape"`
	OCPUs    int    `json:"ocpus"`
	MemoryGB int    `json:"memory_gb"`
}

// DefaultComputeConfig returns the flexible shape used when none is configured
func DefaultComputeConfig() ComputeConfig {
	return ComputeConfig{
		Shape:    "VM.Standard.E4.Flex",
		OCPUs:    1,
		MemoryGB: 16,
	}
}

// Deployment is a created serving endpoint
type Deployment struct {
	ID             string `json:"deployment_id"`
	ModelID        string `json:"model_id"`
	Endpoint       string `json:"endpoint"`
	DisplayName    string `json:"display_name"`
	LifecycleState string `json:"lifecycle_state,omitempty"`
}

// APIError is a non-success response from the hosting service
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("hosting %s returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("hosting %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}
