// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

// Package obs exposes Prometheus metrics for the admission core.
//
// # Scope
//
// Only operational counters live here. Domain data (who was rejected, which
// rule matched) belongs to the audit and WAF logs, never to metric labels.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AdmissionDecisions counts pipeline outcomes per stage and verdict.
	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexio_admission_decisions_total",
			Help: "Admission pipeline decisions by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	// RateLimitRejections counts sliding-window denials per endpoint class.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexio_rate_limit_rejections_total",
			Help: "Requests denied by the sliding-window rate limiter.",
		},
		[]string{"class"},
	)

	// AuditQueueDropped counts audit events lost to queue overflow.
	// The drop-oldest policy makes this the only loss signal.
	AuditQueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexio_audit_queue_dropped_total",
		Help: "Audit events dropped because the in-memory queue was full.",
	})

	// WAFMatches counts rule matches per action.
	WAFMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexio_waf_matches_total",
			Help: "WAF rule matches by action.",
		},
		[]string{"action"},
	)

	// JobTransitions counts job state transitions per kind and target state.
	JobTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexio_job_transitions_total",
			Help: "Background job state transitions.",
		},
		[]string{"kind", "state"},
	)
)

// Init registers all metrics with the default registry.
// Call exactly once during startup.
func Init() {
	prometheus.MustRegister(
		AdmissionDecisions,
		RateLimitRejections,
		AuditQueueDropped,
		WAFMatches,
		JobTransitions,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
