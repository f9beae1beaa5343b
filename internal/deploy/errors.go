// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package deploy

import (
	"errors"
	"fmt"
)

// Precondition errors. Returned before any remote call or state change.
var (
	ErrNoTestDeployment  = errors.New("no test deployment staged")
	ErrTestAlreadyStaged = errors.New("a test deployment is already staged")
	ErrTestIDMismatch    = errors.New("test deployment id mismatch")
	ErrVersionSkew       = errors.New("test version does not follow current version")
	ErrProductionExists  = errors.New("a production deployment is already recorded")
	ErrNoHostingClient   = errors.New("no hosting client configured")
	ErrBackupsDisabled   = errors.New("backups are not configured")
)

var (
	// ErrPromotionAborted is matched by every *PromotionError
	ErrPromotionAborted = errors.New("promotion aborted")

	// ErrModelMismatch means the deployment reported a different model than requested
	ErrModelMismatch = errors.New("deployment serves a different model")

	// ErrBackupIncomplete means the backup has no usable production snapshot
	ErrBackupIncomplete = errors.New("backup has no usable production deployment")

	// ErrBackupModelMismatch means the live deployment no longer serves the backup's model
	ErrBackupModelMismatch = errors.New("backup model does not match live deployment")
)

func isPrecondition(err error) bool {
	for _, target := range []error{
		ErrNoTestDeployment, ErrTestAlreadyStaged, ErrTestIDMismatch,
		ErrVersionSkew, ErrProductionExists, ErrNoHostingClient, ErrBackupsDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Promotion stages at which an abort can happen
const (
	StageUpdate = "update"
	StageVerify = "verify"
)

// PromotionError describes an aborted promotion. Production and the test
// deployment are unchanged when it is returned.
type PromotionError struct {
	Stage             string
	DeploymentID      string
	ProductionVersion int
	TestVersion       int
	ExpectedModelID   string

	// Last model id read back, empty if no read succeeded
	ActualModelID string
	Attempts      int

	Err error
}

func (e *PromotionError) Error() string {
	msg := fmt.Sprintf("promotion of v%d aborted at %s: production deployment %s still on v%d",
		e.TestVersion, e.Stage, e.DeploymentID, e.ProductionVersion)
	if e.Stage == StageVerify {
		actual := e.ActualModelID
		if actual == "" {
			actual = "unknown"
		}
		msg += fmt.Sprintf(" (expected model %s, got %s after %d read-backs)", e.ExpectedModelID, actual, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + "; test deployment was not deleted"
}

func (e *PromotionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPromotionAborted}
	}
	return []error{ErrPromotionAborted, e.Err}
}
