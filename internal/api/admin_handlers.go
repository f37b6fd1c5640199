// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexioerp/nexio/internal/audit"
	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/respond"
	"github.com/nexioerp/nexio/internal/platform/validate"
	"github.com/nexioerp/nexio/internal/waf"
	"github.com/nexioerp/nexio/pkg/pagination"
)

// auditFilterFromQuery parses the audit search filter. Unknown values
// simply narrow nothing; bad timestamps are a caller error.
func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		TenantID:    q.Get("tenant_id"),
		PrincipalID: q.Get("principal_id"),
		Category:    q.Get("category"),
		Severity:    audit.Severity(q.Get("severity")),
		Action:      q.Get("action"),
		Outcome:     audit.Outcome(q.Get("outcome")),
		ErrorCode:   q.Get("error_code"),
		Text:        q.Get("q"),
	}

	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.ValidationError("Invalid " + name + " timestamp, want RFC 3339")
		}
		*dst = parsed
	}
	return f, nil
}

func (s *Server) handleAuditSearch(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	params := pagination.FromRequest(r)
	events, total, err := s.auditStore.Search(r.Context(), filter, params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Paginated(w, events, pagination.NewMeta(params.Page, params.Limit, int(total)))
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.csv"`)
	if err := audit.ExportCSV(r.Context(), s.auditStore, filter, w); err != nil {
		// Headers are gone; all that remains is logging the failure.
		s.log.Error("audit export aborted mid-stream", "error", err)
	}
}

// wafRuleRequest is the create/update payload for screening rules.
type wafRuleRequest struct {
	Name                 string   `json:"name"`
	Pattern              string   `json:"pattern"`
	Target               string   `json:"target"`
	Action               string   `json:"action"`
	Priority             int      `json:"priority"`
	Enabled              bool     `json:"enabled"`
	ExcludedCIDRs        []string `json:"excluded_cidrs"`
	ExcludedPathPrefixes []string `json:"excluded_path_prefixes"`
}

func (req *wafRuleRequest) validate() error {
	v := &validate.Validator{}
	v.Required("name", req.Name).
		MaxLen("name", req.Name, 120).
		Required("pattern", req.Pattern).
		OneOf("target", req.Target,
			string(waf.TargetPath), string(waf.TargetQuery), string(waf.TargetHeaders),
			string(waf.TargetBody), string(waf.TargetUserAgent), string(waf.TargetAll)).
		OneOf("action", req.Action,
			string(waf.ActionBlock), string(waf.ActionChallenge), string(waf.ActionLog))

	// Reject patterns that would be disabled at the next reload anyway.
	if _, err := regexp.Compile(req.Pattern); err != nil {
		v.Custom("pattern", true, "Must be a valid regular expression")
	}
	return v.Err()
}

func (req *wafRuleRequest) apply(rule *waf.Rule) {
	rule.Name = req.Name
	rule.Pattern = req.Pattern
	rule.Target = waf.Target(req.Target)
	rule.Action = waf.Action(req.Action)
	rule.Priority = req.Priority
	rule.Enabled = req.Enabled
	rule.ExcludedCIDRs = req.ExcludedCIDRs
	rule.ExcludedPathPrefixes = req.ExcludedPathPrefixes
}

func (s *Server) handleWAFList(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	rules, total, err := s.wafRules.ListAll(r.Context(), params)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Paginated(w, rules, pagination.NewMeta(params.Page, params.Limit, int(total)))
}

func (s *Server) handleWAFCreate(w http.ResponseWriter, r *http.Request) {
	var req wafRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, validate.ErrInvalidJSON)
		return
	}
	if err := req.validate(); err != nil {
		respond.Error(w, r, err)
		return
	}

	rule := &waf.Rule{}
	req.apply(rule)
	created, err := s.wafRules.Create(r.Context(), rule)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	s.reloadWAF(r)
	respond.Created(w, created)
}

func (s *Server) handleWAFUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond.Error(w, r, apperr.ValidationError("Invalid rule id"))
		return
	}

	var req wafRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, validate.ErrInvalidJSON)
		return
	}
	if err := req.validate(); err != nil {
		respond.Error(w, r, err)
		return
	}

	rule := &waf.Rule{ID: id}
	req.apply(rule)
	updated, err := s.wafRules.Update(r.Context(), rule)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	s.reloadWAF(r)
	respond.OK(w, updated)
}

func (s *Server) handleWAFDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond.Error(w, r, apperr.ValidationError("Invalid rule id"))
		return
	}
	if err := s.wafRules.Delete(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}
	s.reloadWAF(r)
	respond.NoContent(w)
}

// reloadWAF refreshes the compiled snapshot right after a rule change
// instead of waiting for the periodic reload.
func (s *Server) reloadWAF(r *http.Request) {
	if err := s.wafEngine.Reload(r.Context()); err != nil {
		s.log.Error("waf reload after rule change failed", "error", err)
	}
}

func (s *Server) handleTenantInvalidate(w http.ResponseWriter, r *http.Request) {
	s.tenants.Invalidate(chi.URLParam(r, "id"))
	respond.NoContent(w)
}
