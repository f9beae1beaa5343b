// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package hosting

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
)

// Ensure CircuitBreakerClient implements Client
var _ Client = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps a Client with the circuit breaker pattern so an
// unavailable hosting service fails fast instead of timing out every call.
//
// A not-found answer and caller cancellation count as successes: the service
// responded, or nobody is waiting for it.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// CircuitBreakerConfig tunes the breaker
type CircuitBreakerConfig struct {
	Name string

	// Requests allowed through in half-open state
	MaxRequests uint32

	// Counts are cleared after this long in closed state
	Interval time.Duration

	// Open state lasts this long before probing again
	Timeout time.Duration

	// Opens after this many consecutive failures
	ConsecutiveFailures uint32
}

// DefaultCircuitBreakerConfig returns the defaults used by deployctl
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                "hosting-api",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// NewCircuitBreakerClient wraps client
func NewCircuitBreakerClient(client Client, cfg CircuitBreakerConfig) *CircuitBreakerClient {
	if cfg.Name == "" {
		cfg.Name = DefaultCircuitBreakerConfig().Name
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultCircuitBreakerConfig().ConsecutiveFailures
	}
	cbName := cfg.Name
	threshold := cfg.ConsecutiveFailures

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= threshold
			if shouldTrip {
				logging.Warn().
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening hosting circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrDeploymentNotFound) ||
				errors.Is(err, ErrModelNotFound) ||
				errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] Hosting state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: cbName}
}

// State returns the current breaker state
func (cbc *CircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

// execute runs fn through the breaker and records the outcome
func (cbc *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Hosting request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		}
		// Partial results still matter to the caller, e.g. a deployment to clean up
		return result, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	return result, nil
}

// SaveArtifact uploads an artifact with circuit breaker protection
func (cbc *CircuitBreakerClient) SaveArtifact(ctx context.Context, req ArtifactRequest) (string, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.SaveArtifact(ctx, req)
	})
	if err != nil {
		return "", err
	}
	modelID, ok := result.(string)
	if !ok {
		return "", errors.New("circuit breaker: unexpected result type for SaveArtifact")
	}
	return modelID, nil
}

// CreateDeployment creates a deployment with circuit breaker protection
func (cbc *CircuitBreakerClient) CreateDeployment(ctx context.Context, modelID, displayName string, compute ComputeConfig) (*Deployment, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.CreateDeployment(ctx, modelID, displayName, compute)
	})
	if err != nil {
		dep, _ := result.(*Deployment)
		return dep, err
	}
	dep, ok := result.(*Deployment)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for CreateDeployment")
	}
	return dep, nil
}

// GetDeploymentModel reads the served model with circuit breaker protection
func (cbc *CircuitBreakerClient) GetDeploymentModel(ctx context.Context, deploymentID string) (string, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetDeploymentModel(ctx, deploymentID)
	})
	if err != nil {
		return "", err
	}
	modelID, ok := result.(string)
	if !ok {
		return "", errors.New("circuit breaker: unexpected result type for GetDeploymentModel")
	}
	return modelID, nil
}

// UpdateDeploymentModel requests a model swap with circuit breaker protection
func (cbc *CircuitBreakerClient) UpdateDeploymentModel(ctx context.Context, deploymentID, modelID string) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.UpdateDeploymentModel(ctx, deploymentID, modelID)
	})
	return err
}

// DeleteDeployment deletes a deployment with circuit breaker protection
func (cbc *CircuitBreakerClient) DeleteDeployment(ctx context.Context, deploymentID string) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.DeleteDeployment(ctx, deploymentID)
	})
	return err
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
