// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

/*
Package deploy implements the test/production promotion state machine.

An Orchestrator owns the loaded DeploymentState. Every operation applies its
changes to a deep copy, validates it, saves it through the statestore.Store
and only then installs it in memory, so a failed operation leaves both the
durable and the in-memory state exactly as they were.

Lifecycle of one version:

	NONE --StageTest--> TEST --Promote--> PRODUCTION --(later Promote)--> REPLACED
	                      |
	                      +--CleanupTest--> (deleted, never promoted)

Promote with an existing production deployment swaps the served model in
place, keeping the production deployment id and endpoint:

 1. UpdateDeploymentModel(production, test.model_id)
 2. wait InitialDelay, then read the deployment back until it reports
    test.model_id or Timeout elapses (backoff from Interval to MaxInterval)
 3. on any error or mismatch: return *PromotionError, state untouched,
    test deployment kept
 4. on success: persist the new state, then delete the test deployment
    (a failed delete is a warning)

Once the update request has been issued the read-back loop always completes
at least one read, even if the caller's context is canceled.

Recovery tools (recovery.go) restore artifacts from backups and overwrite
production state with operator-supplied or backup-recorded ground truth.
*/
package deploy
