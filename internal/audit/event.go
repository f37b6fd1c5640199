// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package audit records privileged-request outcomes.

# Delivery

Recording never blocks the request path: events enter a bounded
in-memory queue and a single background writer flushes them in
batches. When the queue is full the OLDEST events are dropped and
counted; the newest event always gets a seat, because the most recent
activity is also the most likely to matter in an incident.
*/
package audit

import "time"

// Outcome classifies an audited request.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Severity grades an audit record.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one audit record.
type Event struct {
	ID          int64          `json:"id"`
	RequestID   string         `json:"request_id"`
	TenantID    string         `json:"tenant_id,omitempty"`
	PrincipalID string         `json:"principal_id,omitempty"`
	Category    string         `json:"category"`
	Severity    Severity       `json:"severity"`
	Action      string         `json:"action"`
	Resource    string         `json:"resource,omitempty"`
	Outcome     Outcome        `json:"outcome"`
	ErrorCode   string         `json:"error_code,omitempty"`
	ClientIP    string         `json:"client_ip,omitempty"`
	Method      string         `json:"method,omitempty"`
	Path        string         `json:"path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Filter narrows an audit search. Zero fields match everything.
type Filter struct {
	TenantID    string
	PrincipalID string
	Category    string
	Severity    Severity
	Action      string
	Outcome     Outcome
	ErrorCode   string

	// Text substring-matches against action, path and error code.
	Text string

	From time.Time
	To   time.Time
}
