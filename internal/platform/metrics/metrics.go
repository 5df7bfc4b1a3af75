// Package metrics holds the process-wide prometheus collectors for capture orchestration
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submissions counts routing decisions by backend and reason
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_submissions_total",
		Help: "Capture submissions by chosen backend and routing reason",
	}, []string{"backend", "reason"})

	// DispatchFailures counts synchronous dispatch failures
	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_dispatch_failures_total",
		Help: "Dispatch calls that failed before the backend acknowledged",
	}, []string{"backend"})

	// Retries counts retry jobs created by failure category
	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_retries_total",
		Help: "Retry jobs submitted after a transient failure",
	}, []string{"category"})

	// Reconciled counts jobs force-failed by the stuck-job sweep
	Reconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_jobs_reconciled_total",
		Help: "Jobs failed by the stuck-job reconciler",
	}, []string{"backend"})

	// Jobs is the latest per backend and status count from the reconciler stats window
	Jobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capture_jobs",
		Help: "Jobs in the stats window by backend and status",
	}, []string{"backend", "status"})

	// DeadLetters counts new dead-letter entries by category
	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_dead_letters_total",
		Help: "Dead-letter entries created by error category",
	}, []string{"category"})

	// RollbackTrips counts automatic emergency stops
	RollbackTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_rollback_trips_total",
		Help: "Automatic emergency stops set by the error-spike guard",
	}, []string{"feature"})

	// RateRemaining is the last observed remaining quota per scope
	RateRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capture_ratelimit_remaining",
		Help: "Last observed remaining API quota per scope",
	}, []string{"scope"})
)

// Handler serves the default registry
func Handler() http.Handler { return promhttp.Handler() }
