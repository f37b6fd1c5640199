// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package waf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexioerp/nexio/internal/obs"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/settings"
)

// ErrNotReady is returned while no ruleset snapshot has ever loaded.
// Callers must deny the request: screening fails closed.
var ErrNotReady = errors.New("waf: ruleset not loaded")

// bodyPrefixLimit bounds how much of a request body is buffered for
// screening. The consumed prefix is spliced back so handlers still
// read the full stream.
const bodyPrefixLimit = 8 << 10

// Verdict is the engine's answer for one request.
type Verdict struct {
	// Action is the decisive action: block, challenge, or "" for pass.
	Action Action

	// Rule is the decisive rule, nil on pass.
	Rule *Rule

	// LoggedRules lists log-action rules that matched along the way.
	LoggedRules []int64
}

// Blocked reports whether the verdict stops the request.
func (v Verdict) Blocked() bool {
	return v.Action == ActionBlock || v.Action == ActionChallenge
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Engine evaluates the compiled ruleset against incoming requests.
type Engine struct {
	rules    RuleStore
	hits     HitStore
	registry *settings.Registry
	clk      clock.Clock
	log      *slog.Logger

	mu        sync.RWMutex
	compiled  []compiledRule
	loaded    bool
	needsBody bool
}

// NewEngine wires the screening engine. Call Reload before serving;
// until a snapshot loads, every evaluation fails closed.
func NewEngine(rules RuleStore, hits HitStore, registry *settings.Registry, clk clock.Clock, log *slog.Logger) *Engine {
	return &Engine{rules: rules, hits: hits, registry: registry, clk: clk, log: log}
}

/*
Reload fetches the enabled ruleset and compiles it.

A rule whose pattern fails to compile is disabled in the store and
reported, so one bad edit cannot disable screening as a whole. The
previous snapshot keeps serving when the fetch itself fails.

Parameters:
  - ctx: refresh context.

Returns:
  - error: non-nil when the ruleset could not be fetched.
*/
func (e *Engine) Reload(ctx context.Context) error {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		e.log.Error("waf ruleset fetch failed, keeping previous snapshot", "error", err)
		return err
	}

	compiled := make([]compiledRule, 0, len(rules))
	needsBody := false
	for _, r := range rules {
		if !KnownTarget(r.Target) {
			e.log.Error("waf rule names an unknown inspect target, disabling",
				"rule_id", r.ID, "rule_name", r.Name, "target", string(r.Target))
			if derr := e.rules.Disable(ctx, r.ID, "unknown inspect target: "+string(r.Target)); derr != nil {
				e.log.Error("waf rule disable failed", "rule_id", r.ID, "error", derr)
			}
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			e.log.Error("waf rule pattern no longer compiles, disabling",
				"rule_id", r.ID, "rule_name", r.Name, "error", err)
			if derr := e.rules.Disable(ctx, r.ID, "pattern does not compile: "+err.Error()); derr != nil {
				e.log.Error("waf rule disable failed", "rule_id", r.ID, "error", derr)
			}
			continue
		}
		if r.Target == TargetBody || r.Target == TargetAll {
			needsBody = true
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}

	// The store already orders, but a snapshot must hold the invariant
	// even if the store implementation changes.
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})

	e.mu.Lock()
	e.compiled = compiled
	e.loaded = true
	e.needsBody = needsBody
	e.mu.Unlock()

	e.log.Info("waf ruleset loaded", "rules", len(compiled))
	return nil
}

// Start keeps the snapshot fresh until ctx is cancelled.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = e.Reload(ctx)
			}
		}
	}()
}

/*
Evaluate screens one request.

Parameters:
  - ctx: request context, used only for hit recording.
  - r: the incoming request. Path, raw query, headers, User-Agent and
    a bounded body prefix are the screenable surfaces.
  - clientIP: resolved source address.
  - requestID: correlation id stamped on recorded hits.

Returns:
  - Verdict: pass, block, or challenge.
  - error: non-nil when screening is impossible (no ruleset snapshot);
    callers must treat this as a denial.
*/
func (e *Engine) Evaluate(ctx context.Context, r *http.Request, clientIP, requestID string) (Verdict, error) {
	e.mu.RLock()
	compiled, loaded, needsBody := e.compiled, e.loaded, e.needsBody
	e.mu.RUnlock()

	if !loaded {
		return Verdict{}, ErrNotReady
	}

	ip := net.ParseIP(clientIP)
	path := r.URL.Path

	var body string
	if needsBody {
		body = readBodyPrefix(r)
	}

	var verdict Verdict
	for i := range compiled {
		rule := &compiled[i]
		if rule.excluded(ip, path) {
			continue
		}
		matched := rule.matchedInput(r, body)
		if matched == "" {
			continue
		}

		switch rule.Action {
		case ActionLog:
			verdict.LoggedRules = append(verdict.LoggedRules, rule.ID)
			e.recordHit(ctx, rule, r, clientIP, requestID, matched, e.registry.WAFSampleRate())
		default:
			verdict.Action = rule.Action
			verdict.Rule = &rule.Rule
			// Block and challenge hits are never sampled away.
			e.recordHit(ctx, rule, r, clientIP, requestID, matched, 1.0)
			obs.WAFMatches.WithLabelValues(string(rule.Action)).Inc()
			return verdict, nil
		}
	}

	if len(verdict.LoggedRules) > 0 {
		obs.WAFMatches.WithLabelValues(string(ActionLog)).Inc()
	}
	return verdict, nil
}

// matchedInput returns the matched fragment, or "" for no match.
func (c *compiledRule) matchedInput(r *http.Request, body string) string {
	for _, input := range c.surfaces(r, body) {
		if input == "" {
			continue
		}
		if m := c.re.FindString(input); m != "" {
			return m
		}
	}
	return ""
}

// surfaces lists the request surfaces the rule's target selects. An
// unknown target, which only a stale snapshot can carry, selects none.
func (c *compiledRule) surfaces(r *http.Request, body string) []string {
	switch c.Target {
	case TargetPath:
		return []string{r.URL.Path}
	case TargetQuery:
		return []string{r.URL.RawQuery}
	case TargetHeaders:
		return []string{headerSurface(r)}
	case TargetBody:
		return []string{body}
	case TargetUserAgent:
		return []string{r.UserAgent()}
	case TargetAll:
		return []string{r.URL.Path, r.URL.RawQuery, headerSurface(r), r.UserAgent(), body}
	default:
		return nil
	}
}

// headerSurface flattens the request headers into "Name: value" lines.
func headerSurface(r *http.Request) string {
	var b strings.Builder
	for name, values := range r.Header {
		for _, v := range values {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// readBodyPrefix buffers up to bodyPrefixLimit of the body and splices
// the consumed prefix back in front of the remaining stream.
func readBodyPrefix(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	prefix := make([]byte, bodyPrefixLimit)
	n, _ := io.ReadFull(r.Body, prefix)
	prefix = prefix[:n]
	r.Body = bodySplice{
		Reader: io.MultiReader(bytes.NewReader(prefix), r.Body),
		closer: r.Body,
	}
	return string(prefix)
}

type bodySplice struct {
	io.Reader
	closer io.Closer
}

func (b bodySplice) Close() error { return b.closer.Close() }

func (e *Engine) recordHit(ctx context.Context, rule *compiledRule, r *http.Request, clientIP, requestID, matched string, sampleRate float64) {
	if sampleRate < 1.0 && rand.Float64() >= sampleRate {
		return
	}
	hit := &Hit{
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Action:    rule.Action,
		RequestID: requestID,
		ClientIP:  clientIP,
		Method:    r.Method,
		Path:      r.URL.Path,
		Matched:   matched,
		CreatedAt: e.clk.Now(),
	}
	if err := e.hits.Insert(ctx, hit); err != nil {
		e.log.Error("waf hit record failed", "rule_id", rule.ID, "error", err)
	}
}
