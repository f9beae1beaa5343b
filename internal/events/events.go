// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package events publishes deployment lifecycle events through Watermill.
//
// Events are informational. A failed publish is logged and counted but never
// fails the deployment operation that produced it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultTopic is the topic (NATS subject) lifecycle events are published to
const DefaultTopic = "deployments.lifecycle"

// Type identifies a lifecycle event
type Type string

const (
	TypeTestStaged          Type = "test_staged"
	TypePromoted            Type = "promoted"
	TypePromotionAborted    Type = "promotion_aborted"
	TypeTestCleaned         Type = "test_cleaned"
	TypeArtifactsRolledBack Type = "artifacts_rolled_back"
	TypeStateRepaired       Type = "state_repaired"
	TypeDeploymentImported  Type = "deployment_imported"
	TypeBackupCreated       Type = "backup_created"
)

// Event is the JSON payload of a lifecycle message
type Event struct {
	EventID       string    `json:"event_id"`
	Type          Type      `json:"type"`
	Version       int       `json:"version,omitempty"`
	DeploymentID  string    `json:"deployment_id,omitempty"`
	ModelID       string    `json:"model_id,omitempty"`
	ProjectName   string    `json:"project_name,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Error         string    `json:"error,omitempty"`
}

// New returns an event with a fresh id and timestamp
func New(t Type) *Event {
	return &Event{
		EventID:    uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher sends lifecycle events
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }
