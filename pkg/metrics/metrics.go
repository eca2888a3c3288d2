package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensorlake_build_info",
			Help: "Build information of the sensorlake service",
		},
		[]string{"version", "commit", "date"},
	)

	DatasetRowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorlake_dataset_rows_loaded",
			Help: "Number of cleaned rows produced by the most recent dataset load",
		},
	)

	DatasetRowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorlake_dataset_rows_dropped_total",
			Help: "Total number of raw rows dropped while cleaning, by reason",
		},
		[]string{"reason"},
	)

	DatasetLoadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorlake_dataset_load_errors_total",
			Help: "Total number of failed dataset loads",
		},
	)

	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorlake_responses_total",
			Help: "Total number of instruction responses, by kind",
		},
		[]string{"kind"},
	)

	DegradedResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorlake_degraded_responses_total",
			Help: "Total number of responses that degraded to an analysis, by cause",
		},
		[]string{"cause"},
	)

	RenderErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorlake_render_errors_total",
			Help: "Total number of chart specs that failed to render",
		},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensorlake_render_duration_seconds",
			Help:    "Duration of chart rendering",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorlake_llm_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"status"},
	)

	LLMCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensorlake_llm_call_duration_seconds",
			Help:    "Duration of language model calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s to ~100s
		},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorlake_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorlake_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
		[]string{"tool_name"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorlake_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorlake_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
		[]string{"method", "endpoint"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorlake_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)
