// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package models

import (
	"errors"
	"fmt"
	"time"
)

// Status is the slot a deployment record occupies.
type Status string

const (
	// StatusTest marks the staged deployment awaiting validation
	StatusTest Status = "TEST"

	// StatusProduction marks the deployment serving the production endpoint
	StatusProduction Status = "PRODUCTION"

	// StatusReplaced marks a former production deployment superseded by a promotion
	StatusReplaced Status = "REPLACED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTest, StatusProduction, StatusReplaced:
		return true
	}
	return false
}

// ErrInvalidState is returned when a DeploymentState breaks one of its invariants.
var ErrInvalidState = errors.New("invalid deployment state")

// DeploymentRecord is one hosted instance of a model version.
type DeploymentRecord struct {
	DeploymentID string     `json:"deployment_id"`
	ModelID      string     `json:"model_id"`
	Endpoint     string     `json:"endpoint"`
	Version      int        `json:"version"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	PromotedAt   *time.Time `json:"promoted_at,omitempty"`
	ReplacedAt   *time.Time `json:"replaced_at,omitempty"`
	RepairedAt   *time.Time `json:"repaired_at,omitempty"`
	Description  string     `json:"description,omitempty"`

	// Hosting details recorded at creation time
	DisplayName string `json:"display_name,omitempty"`
	Shape       string `json:"shape,omitempty"`
	OCPUs       int    `json:"ocpus,omitempty"`
	MemoryGB    int    `json:"memory_gb,omitempty"`

	// Imported is set for production deployments created outside this tool
	Imported bool `json:"imported,omitempty"`
}

// Clone returns a deep copy of the record. A nil receiver yields nil.
func (r *DeploymentRecord) Clone() *DeploymentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.PromotedAt = cloneTime(r.PromotedAt)
	c.ReplacedAt = cloneTime(r.ReplacedAt)
	c.RepairedAt = cloneTime(r.RepairedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DeploymentState is the persisted source of truth for the deployment slots.
type DeploymentState struct {
	CurrentVersion       int                 `json:"current_version"`
	ProductionDeployment *DeploymentRecord   `json:"production_deployment"`
	TestDeployment       *DeploymentRecord   `json:"test_deployment"`
	DeploymentHistory    []*DeploymentRecord `json:"deployment_history"`
}

// NewDeploymentState returns the zero state used on first run.
func NewDeploymentState() *DeploymentState {
	return &DeploymentState{
		DeploymentHistory: make([]*DeploymentRecord, 0),
	}
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (s *DeploymentState) Clone() *DeploymentState {
	if s == nil {
		return nil
	}
	c := &DeploymentState{
		CurrentVersion:       s.CurrentVersion,
		ProductionDeployment: s.ProductionDeployment.Clone(),
		TestDeployment:       s.TestDeployment.Clone(),
		DeploymentHistory:    make([]*DeploymentRecord, len(s.DeploymentHistory)),
	}
	for i, r := range s.DeploymentHistory {
		c.DeploymentHistory[i] = r.Clone()
	}
	return c
}

// AppendHistory appends a copy of rec so later slot changes never alias history entries.
func (s *DeploymentState) AppendHistory(rec *DeploymentRecord) {
	s.DeploymentHistory = append(s.DeploymentHistory, rec.Clone())
}

// NextVersion is the version the next staged model will receive.
func (s *DeploymentState) NextVersion() int {
	return s.CurrentVersion + 1
}

// Validate checks the slot invariants:
//   - production, when present, has status PRODUCTION and matches current_version
//   - test, when present, has status TEST
//   - the two slots never hold the same deployment
//   - current_version is never negative
func (s *DeploymentState) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidState)
	}
	if s.CurrentVersion < 0 {
		return fmt.Errorf("%w: negative current_version %d", ErrInvalidState, s.CurrentVersion)
	}

	if p := s.ProductionDeployment; p != nil {
		if p.Status != StatusProduction {
			return fmt.Errorf("%w: production slot has status %q", ErrInvalidState, p.Status)
		}
		if p.Version != s.CurrentVersion {
			return fmt.Errorf("%w: current_version %d does not match production version %d",
				ErrInvalidState, s.CurrentVersion, p.Version)
		}
		if err := validateRecord(p); err != nil {
			return err
		}
	}

	if t := s.TestDeployment; t != nil {
		if t.Status != StatusTest {
			return fmt.Errorf("%w: test slot has status %q", ErrInvalidState, t.Status)
		}
		if err := validateRecord(t); err != nil {
			return err
		}
		if p := s.ProductionDeployment; p != nil && p.DeploymentID == t.DeploymentID {
			return fmt.Errorf("%w: test and production share deployment %s", ErrInvalidState, t.DeploymentID)
		}
	}

	for i, r := range s.DeploymentHistory {
		if r == nil {
			return fmt.Errorf("%w: nil history entry at index %d", ErrInvalidState, i)
		}
		if !r.Status.Valid() {
			return fmt.Errorf("%w: history entry %d has status %q", ErrInvalidState, i, r.Status)
		}
	}

	return nil
}

func validateRecord(r *DeploymentRecord) error {
	if r.DeploymentID == "" {
		return fmt.Errorf("%w: %s record missing deployment_id", ErrInvalidState, r.Status)
	}
	if r.ModelID == "" {
		return fmt.Errorf("%w: %s record missing model_id", ErrInvalidState, r.Status)
	}
	if r.Version < 1 {
		return fmt.Errorf("%w: %s record has version %d", ErrInvalidState, r.Status, r.Version)
	}
	return nil
}
