package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingoloop_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingoloop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QuotaConsumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingoloop_quota_consume_total",
			Help: "Quota consume attempts by result (consumed, exhausted, error).",
		},
		[]string{"result"},
	)

	QuotaGateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingoloop_quota_gate_decisions_total",
			Help: "Gate decisions by kind (allowed, denied, fail_open).",
		},
		[]string{"decision"},
	)

	QuotaStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingoloop_quota_store_errors_total",
			Help: "Quota store failures by operation.",
		},
		[]string{"op"},
	)

	QuotaResetRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingoloop_quota_reset_runs_total",
			Help: "Daily reset cycles by result (succeeded, failed, skipped).",
		},
		[]string{"result"},
	)

	QuotaResetRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingoloop_quota_reset_rows_total",
			Help: "Total quota records restored by reset cycles.",
		},
	)

	SchedulerConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingoloop_quota_scheduler_consecutive_failures",
			Help: "Consecutive failed reset cycles since the last success.",
		},
	)

	SchedulerLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingoloop_quota_scheduler_last_success_timestamp_seconds",
			Help: "Unix time of the last successful reset cycle.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaConsumeTotal,
		QuotaGateDecisionsTotal,
		QuotaStoreErrorsTotal,
		QuotaResetRunsTotal,
		QuotaResetRowsTotal,
		SchedulerConsecutiveFailures,
		SchedulerLastSuccess,
	)
}
