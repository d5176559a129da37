package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"profile-analyzer/pkg/ai"
)

const (
	profileAnalyzer = "profile_analyzer"

	providerRequestsTotal = "provider_requests_total"
	throttleRetriesTotal  = "provider_throttle_retries_total"
	repairOutcomesTotal   = "repair_outcomes_total"
	fallbacksTotal        = "backend_fallbacks_total"
	jobsClaimedTotal      = "jobs_claimed_total"
	jobsCompletedTotal    = "jobs_completed_total"
	jobDurationSeconds    = "job_duration_seconds"

	// Labels
	backendLabel  = "backend"
	outcomeLabel  = "outcome"
	strategyLabel = "strategy"
	fromLabel     = "from"
	toLabel       = "to"
	statusLabel   = "status"
)

/**
* Metrics definition
**/
var providerRequestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: profileAnalyzer,
		Name:      providerRequestsTotal,
		Help:      "number of generation backend calls by outcome",
	},
	[]string{backendLabel, outcomeLabel},
)

var throttleRetriesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: profileAnalyzer,
		Name:      throttleRetriesTotal,
		Help:      "number of retries after a throttled backend response",
	},
	[]string{backendLabel},
)

var repairOutcomesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: profileAnalyzer,
		Name:      repairOutcomesTotal,
		Help:      "parsed generation outputs by repair strategy",
	},
	[]string{backendLabel, strategyLabel},
)

var fallbacksMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: profileAnalyzer,
		Name:      fallbacksTotal,
		Help:      "number of fallbacks to the default backend",
	},
	[]string{fromLabel, toLabel},
)

var jobsClaimedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: profileAnalyzer,
		Name:      jobsClaimedTotal,
		Help:      "number of jobs claimed by the worker",
	},
)

var jobsCompletedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: profileAnalyzer,
		Name:      jobsCompletedTotal,
		Help:      "number of jobs that reached a terminal state",
	},
	[]string{statusLabel},
)

var jobDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: profileAnalyzer,
		Name:      jobDurationSeconds,
		Help:      "wall-clock time spent processing one job",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	},
	[]string{statusLabel},
)

func IncreaseJobsClaimedMetric(n int) {
	jobsClaimedMetric.Add(float64(n))
}

func ObserveJobCompletedMetric(status string, elapsed time.Duration) {
	labels := prometheus.Labels{statusLabel: status}
	jobsCompletedMetric.With(labels).Inc()
	jobDurationMetric.With(labels).Observe(elapsed.Seconds())
}

// Observer feeds provider and repair outcomes from pkg/ai into the
// registered counters.
type Observer struct{}

var _ ai.Observer = Observer{}

func (Observer) ObserveProviderRequest(backend, outcome string) {
	providerRequestsMetric.With(prometheus.Labels{backendLabel: backend, outcomeLabel: outcome}).Inc()
}

func (Observer) ObserveThrottleRetry(backend string) {
	throttleRetriesMetric.With(prometheus.Labels{backendLabel: backend}).Inc()
}

func (Observer) ObserveRepair(backend string, strategy ai.RepairStrategy) {
	repairOutcomesMetric.With(prometheus.Labels{backendLabel: backend, strategyLabel: string(strategy)}).Inc()
}

func (Observer) ObserveFallback(from, to string) {
	fallbacksMetric.With(prometheus.Labels{fromLabel: from, toLabel: to}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(providerRequestsMetric)
	prometheus.MustRegister(throttleRetriesMetric)
	prometheus.MustRegister(repairOutcomesMetric)
	prometheus.MustRegister(fallbacksMetric)
	prometheus.MustRegister(jobsClaimedMetric)
	prometheus.MustRegister(jobsCompletedMetric)
	prometheus.MustRegister(jobDurationMetric)
}
