package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "run",
			Name:      "starts_total",
			Help:      "Number of worker runs started.",
		}, []string{"industry"},
	)
	runRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "run",
			Name:      "retries_total",
			Help:      "Number of retry attempts scheduled.",
		}, []string{"industry"},
	)
	runCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "run",
			Name:      "completions_total",
			Help:      "Number of finished runs by terminal status.",
		}, []string{"status"},
	)
	classifiedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoutd",
			Subsystem: "monitor",
			Name:      "classified_errors_total",
			Help:      "Worker output lines classified as errors, per category.",
		}, []string{"category"},
	)
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scoutd",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	backoffSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scoutd",
			Subsystem: "retry",
			Name:      "backoff_seconds",
			Help:      "Backoff delays applied before retry attempts.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runStarts, runRetries, runCompletions, classifiedErrors, breakerState, backoffSeconds}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op when Register hasn't been called.

func IncStart(industry string) {
	if regOK.Load() {
		runStarts.WithLabelValues(industry).Inc()
	}
}

func IncRetry(industry string) {
	if regOK.Load() {
		runRetries.WithLabelValues(industry).Inc()
	}
}

func IncCompletion(status string) {
	if regOK.Load() {
		runCompletions.WithLabelValues(status).Inc()
	}
}

func IncClassifiedError(category string) {
	if regOK.Load() {
		classifiedErrors.WithLabelValues(category).Inc()
	}
}

func SetBreakerState(state string, active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1.0
		}
		breakerState.WithLabelValues(state).Set(v)
	}
}

func ObserveBackoff(seconds float64) {
	if regOK.Load() {
		backoffSeconds.Observe(seconds)
	}
}
