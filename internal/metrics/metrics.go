package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_upstream_requests_total",
			Help: "Total number of outbound requests per provider and status",
		},
		[]string{"provider", "status"},
	)

	UpstreamRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherhub_upstream_request_duration_seconds",
			Help:    "Outbound request duration in seconds per provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_upstream_errors_total",
			Help: "Total number of failed outbound calls per provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	RateLimitRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_rate_limit_retries_total",
			Help: "Total number of retries after HTTP 429 per provider",
		},
		[]string{"provider"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_cache_hits_total",
			Help: "Total number of response cache hits per provider",
		},
		[]string{"provider"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_cache_misses_total",
			Help: "Total number of response cache misses per provider",
		},
		[]string{"provider"},
	)
)

var (
	ProviderFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_provider_fallbacks_total",
			Help: "Total number of times a field was served by a non-primary provider",
		},
		[]string{"field", "provider"},
	)

	FieldUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_field_unavailable_total",
			Help: "Total number of fetches where every provider failed for a field",
		},
		[]string{"field"},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherhub_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherhub_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherhub_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
