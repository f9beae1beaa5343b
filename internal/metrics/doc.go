// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

/*
Package metrics provides Prometheus collectors for the deployment manager.

All collectors are registered with the default registry through promauto and
are safe for concurrent use. deployctl exposes them with --metrics-addr; batch
invocations can push them to a Pushgateway instead.

# Available Metrics

Deployment operations:
  - recdeploy_operations_total: Orchestrator operations (counter)
    Labels: operation, result
  - recdeploy_operation_duration_seconds: Operation latency (histogram)
    Labels: operation
  - recdeploy_production_version: Version currently serving production (gauge)
  - recdeploy_test_deployment_staged: 1 while a test deployment exists (gauge)

Promotion verification:
  - recdeploy_promotion_verify_attempts_total: Read-backs issued (counter)
  - recdeploy_promotion_verify_duration_seconds: Time from update request to
    verified or aborted (histogram)
    Labels: result

Backups:
  - recdeploy_backups_total: Backups attempted (counter)
    Labels: result
  - recdeploy_backup_duration_seconds: Backup copy time (histogram)
  - recdeploy_backup_last_size_bytes: Size of the newest backup (gauge)
  - recdeploy_backups_available: Backups found on last listing (gauge)
  - recdeploy_restores_total: Artifact restores (counter)
    Labels: result

Hosting service:
  - recdeploy_hosting_requests_total: Hosting API calls (counter)
    Labels: operation, result
  - recdeploy_hosting_request_duration_seconds: Hosting API latency (histogram)
    Labels: operation

Circuit breaker:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - circuit_breaker_requests_total (counter), labels: name, result
  - circuit_breaker_consecutive_failures (gauge)
  - circuit_breaker_state_transitions_total (counter)

State and events:
  - recdeploy_state_saves_total: State store writes (counter)
    Labels: backend, result
  - recdeploy_events_published_total: Lifecycle events (counter)
    Labels: type, result
*/
package metrics
