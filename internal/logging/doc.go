// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package logging provides the zerolog-based structured logging shared by
// every recdeploy package.
//
// # Quick Start
//
//	import "github.com/tomtom215/recdeploy/internal/logging"
//
//	logging.Init(logging.Config{Level: "info", Format: "console"})
//
//	logging.Info().Int("version", 3).Msg("Promotion verified")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Test deployment delete failed")
//
// Every orchestrator operation runs under its own correlation id; use
// ContextWithNewCorrelationID at the start of an operation and Ctx(ctx) for
// every log line belonging to it.
//
// # Watermill
//
// NewWatermillAdapter exposes the global logger as a watermill.LoggerAdapter
// so publisher and NATS connection messages end up in the same stream.
//
// # Secrets
//
// Never log the hosting API token. SanitizeToken masks it when a value must
// appear in a diagnostic message.
package logging
