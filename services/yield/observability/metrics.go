// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the yield HTTP API.
//
// # Description
//
// Metrics include:
//   - Request counters and latency histograms (by endpoint and status)
//   - Yield observed per strategy
//   - Degraded optimal runs (solver fell back to greedy)
//   - Rejected requests (rate limit, validation)
//
// Metrics are exposed via the /metrics endpoint together with the OTel
// instruments when both share one registry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace = "aleutian"
	yieldSubsystem   = "yield"
)

// Metrics holds the Prometheus metrics for the yield API.
//
// # Fields
//
//   - RequestsTotal: Counter of requests by endpoint and HTTP status
//   - RequestDurationSeconds: Histogram of request latency by endpoint
//   - StrategyYield: Histogram of yields per strategy
//   - DegradedTotal: Counter of optimal runs that fell back to greedy
//   - RejectedTotal: Counter of requests rejected before reaching a handler
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// RequestsTotal counts requests.
	// Labels: endpoint (simulate, optimize, ...), status (200, 400, ...)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures request latency.
	// Labels: endpoint
	RequestDurationSeconds *prometheus.HistogramVec

	// StrategyYield observes the yield each strategy achieves.
	// Labels: strategy
	StrategyYield *prometheus.HistogramVec

	// DegradedTotal counts optimal runs served by the greedy fallback.
	DegradedTotal prometheus.Counter

	// RejectedTotal counts requests rejected by middleware.
	// Labels: reason (rate_limited, origin)
	RejectedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the yield metrics on reg.
//
// # Inputs
//
//   - reg: Registerer to use. Nil registers on the default registry.
//
// # Outputs
//
//   - *Metrics: The registered metrics.
//
// # Limitations
//
//   - Panics if called twice with the same registerer (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: yieldSubsystem,
				Name:      "requests_total",
				Help:      "Total number of yield API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: yieldSubsystem,
				Name:      "request_duration_seconds",
				Help:      "Yield API request latency in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"endpoint"},
		),

		StrategyYield: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: yieldSubsystem,
				Name:      "strategy_yield",
				Help:      "Total yield produced by each sequencing strategy",
				Buckets:   []float64{10, 25, 50, 75, 100, 150, 200, 300, 500},
			},
			[]string{"strategy"},
		),

		DegradedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: yieldSubsystem,
				Name:      "degraded_total",
				Help:      "Optimal strategy runs that fell back to greedy",
			},
		),

		RejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: yieldSubsystem,
				Name:      "rejected_total",
				Help:      "Requests rejected before reaching a handler",
			},
			[]string{"reason"},
		),
	}
}

// =============================================================================
// Reject Reasons
// =============================================================================

// RejectReason categorizes a request rejected by middleware.
type RejectReason string

const (
	// RejectRateLimited indicates the request exceeded the rate limit.
	RejectRateLimited RejectReason = "rate_limited"

	// RejectOrigin indicates a CORS origin outside the allow-list.
	RejectOrigin RejectReason = "origin"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request.
//
// # Inputs
//
//   - endpoint: Route label, e.g. "optimize".
//   - status: HTTP status code written.
//   - seconds: Handler latency in seconds.
func (m *Metrics) RecordRequest(endpoint string, status int, seconds float64) {
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.RequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// RecordYield records the yield a strategy achieved.
func (m *Metrics) RecordYield(strategy string, yield float64) {
	m.StrategyYield.WithLabelValues(strategy).Observe(yield)
}

// RecordDegraded increments the degraded counter.
func (m *Metrics) RecordDegraded() {
	m.DegradedTotal.Inc()
}

// RecordRejected increments the rejected counter for reason.
func (m *Metrics) RecordRejected(reason RejectReason) {
	m.RejectedTotal.WithLabelValues(string(reason)).Inc()
}
