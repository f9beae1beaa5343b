// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

// Package main implements deployctl, the operator CLI for staging, promoting
// and recovering recommender model deployments.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/recdeploy/internal/logging"
)

// version information, set at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("deployctl failed")
		stop()
		os.Exit(1)
	}
}
