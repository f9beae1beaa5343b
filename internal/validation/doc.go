// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package validation wraps go-playground/validator v10 with a shared
// validator instance and operator-readable messages.
//
// Field names in messages come from the json (or koanf) tag, so an import
// request missing its model id reports "model_id is required".
//
//	type ImportRequest struct {
//	    DeploymentID string `json:"deployment_id" validate:"required"`
//	    Version      int    `json:"version" validate:"min=1"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return verr // errors.Is(verr, validation.ErrValidation)
//	}
package validation
