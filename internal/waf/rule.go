// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package waf screens requests against an operator-managed ruleset
before any authentication work happens.

# Ordering

Rules evaluate in (priority descending, id ascending) order. The first
matching block or challenge rule ends evaluation; log rules record and
let evaluation continue.

# Failure posture

The engine fails closed: a request that cannot be screened, because no
ruleset snapshot has ever loaded, is rejected rather than waved
through. A rule whose pattern no longer compiles is disabled and
reported instead of taking the whole ruleset down.
*/
package waf

import (
	"net"
	"strings"
	"time"
)

// Action is what a matching rule does to the request.
type Action string

const (
	// ActionBlock rejects the request outright.
	ActionBlock Action = "block"

	// ActionChallenge rejects with a retriable verification demand.
	ActionChallenge Action = "challenge"

	// ActionLog records the match and lets evaluation continue.
	ActionLog Action = "log"
)

// Target selects the request surface a rule's pattern runs against.
type Target string

const (
	TargetPath      Target = "path"
	TargetQuery     Target = "query"
	TargetHeaders   Target = "headers"
	TargetBody      Target = "body"
	TargetUserAgent Target = "user_agent"
	TargetAll       Target = "all"
)

// KnownTarget reports whether t names a screenable surface. Rules with
// any other target are rejected at creation and disabled at reload,
// never silently matched against a substitute surface.
func KnownTarget(t Target) bool {
	switch t {
	case TargetPath, TargetQuery, TargetHeaders, TargetBody, TargetUserAgent, TargetAll:
		return true
	}
	return false
}

// Rule is one screening rule as stored.
type Rule struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Target   Target `json:"target"`
	Action   Action `json:"action"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`

	// ExcludedCIDRs lists source ranges the rule never applies to.
	ExcludedCIDRs []string `json:"excluded_cidrs,omitempty"`

	// ExcludedPathPrefixes lists endpoint prefixes the rule skips.
	ExcludedPathPrefixes []string `json:"excluded_path_prefixes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// excluded reports whether the rule must skip this source or path.
func (r *Rule) excluded(ip net.IP, path string) bool {
	for _, cidr := range r.ExcludedCIDRs {
		if _, network, err := net.ParseCIDR(cidr); err == nil && ip != nil && network.Contains(ip) {
			return true
		}
	}
	for _, prefix := range r.ExcludedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Hit is one recorded rule match.
type Hit struct {
	ID        int64     `json:"id"`
	RuleID    int64     `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	Action    Action    `json:"action"`
	RequestID string    `json:"request_id"`
	ClientIP  string    `json:"client_ip"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Matched   string    `json:"matched"`
	CreatedAt time.Time `json:"created_at"`
}
