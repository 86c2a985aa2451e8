// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_requests_total",
			Help: "Total number of requests by route and terminal status",
		},
		[]string{"route", "status"},
	)

	PipelineStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_pipeline_stage_total",
			Help: "Pipeline stage outcomes",
		},
		[]string{"stage", "status"},
	)

	QueryExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_query_executions_total",
			Help: "Catalog query executions by id and outcome",
		},
		[]string{"query_id", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "insight_query_duration_seconds",
			Help: "Duration of catalog query executions",
		},
		[]string{"query_id"},
	)

	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_cache_events_total",
			Help: "Result cache events (hit, miss, invalidate)",
		},
		[]string{"event"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_llm_calls_total",
			Help: "LLM calls by role, provider and outcome",
		},
		[]string{"role", "provider", "status"},
	)

	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "insight_streams_active",
			Help: "Number of open streaming responses",
		},
	)
)
