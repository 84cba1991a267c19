// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polaris_api_request_duration_seconds",
			Help:    "Total time taken for requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60, 120, 300},
		},
		[]string{"model", "endpoint"},
	)

	TimeToFirstChunk = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polaris_api_time_to_first_chunk_seconds",
			Help:    "Time to first streamed chunk in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
		},
		[]string{"model", "endpoint"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polaris_api_request_count_total",
			Help: "Total number of requests processed",
		},
		[]string{"model", "endpoint", "status"},
	)

	FailoverAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polaris_api_failover_attempts_total",
			Help: "Upstream attempts per candidate outcome",
		},
		[]string{"outcome"},
	)

	StreamChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polaris_api_stream_chunks_total",
			Help: "SSE chunks emitted to clients",
		},
		[]string{"model"},
	)

	WSSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polaris_api_ws_sessions",
			Help: "Currently open relay sessions",
		},
	)

	WSBufferedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polaris_api_ws_buffered_messages_total",
			Help: "Client frames buffered before the upstream socket opened",
		},
		[]string{"outcome"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polaris_api_error_count",
			Help: "Error count",
		},
		[]string{"endpoint", "from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polaris_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
