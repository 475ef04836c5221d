package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepresearch_requests_total",
		Help: "HTTP requests by endpoint and status class.",
	}, []string{"endpoint", "status"})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepresearch_turns_total",
		Help: "Completed research turns by terminal status.",
	}, []string{"status"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepresearch_turn_duration_seconds",
		Help:    "End-to-end research turn duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deepresearch_active_streams",
		Help: "Currently open SSE streams.",
	})
)
