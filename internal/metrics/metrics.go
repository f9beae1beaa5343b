// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

var (
	// Orchestrator Metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recdeploy_operations_total",
			Help: "Total number of deployment operations",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recdeploy_operation_duration_seconds",
			Help:    "Duration of deployment operations in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	ProductionVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recdeploy_production_version",
			Help: "Model version currently serving production (0 when none)",
		},
	)

	TestDeploymentStaged = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recdeploy_test_deployment_staged",
			Help: "1 while a test deployment is staged, otherwise 0",
		},
	)

	// Promotion Verification Metrics
	PromotionVerifyAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recdeploy_promotion_verify_attempts_total",
			Help: "Total number of deployment model read-backs during promotion",
		},
	)

	PromotionVerifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recdeploy_promotion_verify_duration_seconds",
			Help:    "Time from update request to verified or aborted promotion",
			Buckets: []float64{1, 5, 15, 30, 60, 90, 120, 300, 600},
		},
		[]string{"result"},
	)

	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recdeploy_backups_total",
			Help: "Total number of backups attempted",
		},
		[]string{"result"},
	)

	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recdeploy_backup_duration_seconds",
			Help:    "Duration of backup copies in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BackupLastSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recdeploy_backup_last_size_bytes",
			Help: "Size in bytes of the most recently created backup",
		},
	)

	BackupsAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recdeploy_backups_available",
			Help: "Number of backups found on the last listing",
		},
	)

	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recdeploy_restores_total",
			Help: "Total number of artifact restores",
		},
		[]string{"result"},
	)

	// Hosting Service Metrics
	HostingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recdeploy_hosting_requests_total",
			Help: "Total number of hosting service API calls",
		},
		[]string{"operation", "result"},
	)

	HostingRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recdeploy_hosting_request_duration_seconds",
			Help:    "Latency of hosting service API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// State and Event Metrics
	StateSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recdeploy_state_saves_total",
			Help: "Total number of deployment state writes",
		},
		[]string{"backend", "result"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recdeploy_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"type", "result"},
	)
)

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// RecordOperation records an orchestrator operation and its latency
func RecordOperation(operation string, duration time.Duration, err error) {
	OperationsTotal.WithLabelValues(operation, result(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRejected records an operation refused by a precondition
func RecordRejected(operation string) {
	OperationsTotal.WithLabelValues(operation, ResultRejected).Inc()
}

// RecordVerifyAttempt counts one promotion read-back
func RecordVerifyAttempt() {
	PromotionVerifyAttempts.Inc()
}

// RecordVerification records how long a promotion waited for the swap to apply
func RecordVerification(duration time.Duration, verified bool) {
	label := ResultSuccess
	if !verified {
		label = ResultFailure
	}
	PromotionVerifyDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// SetSlots publishes the production version and whether a test deployment exists
func SetSlots(productionVersion int, testStaged bool) {
	ProductionVersion.Set(float64(productionVersion))
	if testStaged {
		TestDeploymentStaged.Set(1)
	} else {
		TestDeploymentStaged.Set(0)
	}
}

// RecordBackup records a backup attempt
func RecordBackup(duration time.Duration, sizeBytes int64, err error) {
	BackupsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	BackupDuration.Observe(duration.Seconds())
	BackupLastSizeBytes.Set(float64(sizeBytes))
}

// SetBackupsAvailable records the number of backups on disk
func SetBackupsAvailable(n int) {
	BackupsAvailable.Set(float64(n))
}

// RecordRestore records an artifact restore
func RecordRestore(err error) {
	RestoresTotal.WithLabelValues(result(err)).Inc()
}

// RecordHostingRequest records a hosting service API call
func RecordHostingRequest(operation string, duration time.Duration, err error) {
	HostingRequestsTotal.WithLabelValues(operation, result(err)).Inc()
	HostingRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStateSave records a state store write
func RecordStateSave(backend string, err error) {
	StateSavesTotal.WithLabelValues(backend, result(err)).Inc()
}

// RecordEventPublish records a lifecycle event publication
func RecordEventPublish(eventType string, err error) {
	EventsPublishedTotal.WithLabelValues(eventType, result(err)).Inc()
}
