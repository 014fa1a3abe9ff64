// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring streaming chat
// operations. Metrics include:
//   - Turn counters (by endpoint, status, error code)
//   - Latency histograms (time to first token, total turn duration)
//   - Active stream and subscriber gauges
//   - Resume and quota counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for chat turn metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for streaming chat operations.
//
// Initialize once at startup via InitMetrics().
type ChatMetrics struct {
	// TurnsTotal counts chat turns by variant and status.
	// Labels: variant (chat-model, chat-model-reasoning), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures latency to the first token event.
	// Labels: variant
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// TurnDurationSeconds measures total turn duration.
	// Labels: variant, status (success, error)
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks live generation turns.
	ActiveStreams prometheus.Gauge

	// ActiveSubscribers tracks attached SSE/WebSocket subscribers.
	// Labels: transport (sse, websocket)
	ActiveSubscribers *prometheus.GaugeVec

	// ErrorsTotal counts turn failures by taxonomy code.
	// Labels: error_code (rate_limited, upstream_unavailable, timeout, etc.)
	ErrorsTotal *prometheus.CounterVec

	// ResumesTotal counts stream resume attempts.
	// Labels: outcome (live, replayed, orphaned, unknown)
	ResumesTotal *prometheus.CounterVec

	// QuotaRejectionsTotal counts turns rejected by the daily quota.
	// Labels: user_type (guest, regular)
	QuotaRejectionsTotal *prometheus.CounterVec

	// ToolInvocationsTotal counts tool executions.
	// Labels: tool, status (success, error)
	ToolInvocationsTotal *prometheus.CounterVec

	// RetrievalHits measures products retrieved per turn.
	RetrievalHits prometheus.Histogram

	// ClientDisconnectsTotal counts subscribers lost mid-stream.
	// Labels: transport (sse, websocket)
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Call once at application
// startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total chat turns by variant and status",
			},
			[]string{"variant", "status"},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first token event in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"variant"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Total turn duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"variant", "status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of live generation turns",
			},
		),

		ActiveSubscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_subscribers",
				Help:      "Number of attached stream subscribers by transport",
			},
			[]string{"transport"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Total turn failures by taxonomy code",
			},
			[]string{"error_code"},
		),

		ResumesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "resumes_total",
				Help:      "Total stream resume attempts by outcome",
			},
			[]string{"outcome"},
		),

		QuotaRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "quota_rejections_total",
				Help:      "Total turns rejected by the daily message quota",
			},
			[]string{"user_type"},
		),

		ToolInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tool_invocations_total",
				Help:      "Total tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		RetrievalHits: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "retrieval_hits",
				Help:      "Products retrieved per turn",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
			},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total subscribers lost mid-stream by transport",
			},
			[]string{"transport"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed chat turn.
func (m *ChatMetrics) RecordTurn(variant string, success bool) {
	m.TurnsTotal.WithLabelValues(variant, statusLabel(success)).Inc()
}

// RecordError records a turn failure by taxonomy code.
func (m *ChatMetrics) RecordError(errorCode string) {
	m.ErrorsTotal.WithLabelValues(errorCode).Inc()
}

// RecordTimeToFirstToken records latency to the first token event.
func (m *ChatMetrics) RecordTimeToFirstToken(variant string, seconds float64) {
	m.TimeToFirstTokenSeconds.WithLabelValues(variant).Observe(seconds)
}

// RecordTurnDuration records the total turn duration.
func (m *ChatMetrics) RecordTurnDuration(variant string, seconds float64, success bool) {
	m.TurnDurationSeconds.WithLabelValues(variant, statusLabel(success)).Observe(seconds)
}

// StreamStarted increments the active streams gauge.
func (m *ChatMetrics) StreamStarted() { m.ActiveStreams.Inc() }

// StreamEnded decrements the active streams gauge.
func (m *ChatMetrics) StreamEnded() { m.ActiveStreams.Dec() }

// SubscriberAttached increments the subscriber gauge for a transport.
func (m *ChatMetrics) SubscriberAttached(transport string) {
	m.ActiveSubscribers.WithLabelValues(transport).Inc()
}

// SubscriberDetached decrements the subscriber gauge for a transport.
func (m *ChatMetrics) SubscriberDetached(transport string) {
	m.ActiveSubscribers.WithLabelValues(transport).Dec()
}

// RecordResume records a resume attempt outcome.
func (m *ChatMetrics) RecordResume(outcome string) {
	m.ResumesTotal.WithLabelValues(outcome).Inc()
}

// RecordQuotaRejection records a quota-rejected turn.
func (m *ChatMetrics) RecordQuotaRejection(userType string) {
	m.QuotaRejectionsTotal.WithLabelValues(userType).Inc()
}

// RecordToolInvocation records one tool execution.
func (m *ChatMetrics) RecordToolInvocation(tool string, success bool) {
	m.ToolInvocationsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
}

// RecordRetrievalHits records how many products a turn retrieved.
func (m *ChatMetrics) RecordRetrievalHits(count int) {
	m.RetrievalHits.Observe(float64(count))
}

// RecordClientDisconnect records a subscriber lost mid-stream.
func (m *ChatMetrics) RecordClientDisconnect(transport string) {
	m.ClientDisconnectsTotal.WithLabelValues(transport).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
