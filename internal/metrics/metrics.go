// Package metrics exposes Prometheus instrumentation for the indexing
// engine.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts pipeline runs by entity and outcome status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_indexing_runs_total",
		Help: "Pipeline runs by entity and outcome.",
	}, []string{"entity", "status"})

	// ItemsProcessed counts records upserted by entity.
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_items_processed_total",
		Help: "Records upserted by entity.",
	}, []string{"entity"})

	// RateLimitDeferrals counts runs deferred because the credential budget
	// fell below the entity threshold.
	RateLimitDeferrals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_rate_limit_deferrals_total",
		Help: "Runs deferred for rate-limit exhaustion.",
	}, []string{"entity"})

	// RunDuration observes pipeline execution time by entity.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitpulse_run_duration_seconds",
		Help:    "Pipeline run duration by entity.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"entity"})

	// StuckReaped counts indexing states recovered by the reaper.
	StuckReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitpulse_stuck_states_reaped_total",
		Help: "Indexing states transitioned from running back to pending.",
	})
)

// ObserveRun records the standard per-run metrics.
func ObserveRun(entity, status string, processed int, elapsed time.Duration) {
	RunsTotal.WithLabelValues(entity, status).Inc()
	if processed > 0 {
		ItemsProcessed.WithLabelValues(entity).Add(float64(processed))
	}
	RunDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

// Serve starts the /metrics listener on localhost:port. Blocks until the
// server fails; callers run it in a goroutine.
func Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", port), mux)
}
