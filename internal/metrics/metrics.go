// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package metrics provides Prometheus instrumentation for the recommendation
// engine: request throughput and latency per scoring path, text-encoder call
// outcomes, embedding cache efficiency, and record store activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendRequestsTotal counts recommendation requests by scoring path
	// and outcome. Path is one of "semantic", "factor", "fallback", "cached".
	RecommendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerygma_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"path", "status"},
	)

	// RecommendDuration measures end-to-end recommendation latency per path.
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kerygma_recommend_duration_seconds",
			Help:    "Recommendation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"path"},
	)

	// EncoderRequestsTotal counts text-encoder calls by outcome:
	// "ok", "error", "timeout", "breaker_open", "rate_limited".
	EncoderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerygma_encoder_requests_total",
			Help: "Total number of text-encoder calls",
		},
		[]string{"status"},
	)

	// EncoderDuration measures text-encoder call latency.
	EncoderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kerygma_encoder_duration_seconds",
			Help:    "Text-encoder call latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// EncoderBreakerState reports the encoder circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	EncoderBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kerygma_encoder_breaker_state",
			Help: "Text-encoder circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// EmbedCacheHits counts speaker-embedding cache hits.
	EmbedCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kerygma_embed_cache_hits_total",
			Help: "Total number of speaker embedding cache hits",
		},
	)

	// EmbedCacheMisses counts speaker-embedding cache misses.
	EmbedCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kerygma_embed_cache_misses_total",
			Help: "Total number of speaker embedding cache misses",
		},
	)

	// EmbedCacheRejects counts cache entries rejected as stale or corrupt.
	EmbedCacheRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kerygma_embed_cache_rejects_total",
			Help: "Total number of cached embeddings rejected (version mismatch or corrupt)",
		},
	)

	// RecordUpsertsTotal counts recommendation record upserts by outcome.
	RecordUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerygma_record_upserts_total",
			Help: "Total number of recommendation record upserts",
		},
		[]string{"status"},
	)

	// ArtifactInfo exposes metadata of the loaded embedding artifact.
	// Value is always 1 when an artifact is loaded.
	ArtifactInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kerygma_artifact_info",
			Help: "Metadata of the loaded embedding artifact (value is always 1)",
		},
		[]string{"version", "checksum"},
	)

	// FeedbackEventsTotal counts processed swipe feedback events by outcome.
	FeedbackEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerygma_feedback_events_total",
			Help: "Total number of processed swipe feedback events",
		},
		[]string{"status"},
	)
)

// ObserveRecommend records a completed recommendation request.
func ObserveRecommend(path string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RecommendRequestsTotal.WithLabelValues(path, status).Inc()
	RecommendDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

// ObserveEncoder records a completed text-encoder call.
func ObserveEncoder(status string, start time.Time) {
	EncoderRequestsTotal.WithLabelValues(status).Inc()
	EncoderDuration.Observe(time.Since(start).Seconds())
}
