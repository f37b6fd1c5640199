// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/audit"
	"github.com/nexioerp/nexio/internal/platform/apperr"
)

func TestAuditFilterFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET",
		"/admin/audit?tenant_id=tnt-1&category=admission&severity=warning&outcome=denied"+
			"&error_code=WAF_BLOCKED&q=../&from=2026-03-01T00:00:00Z", nil)

	f, err := auditFilterFromQuery(r)
	require.NoError(t, err)

	assert.Equal(t, "tnt-1", f.TenantID)
	assert.Equal(t, "admission", f.Category)
	assert.Equal(t, audit.SeverityWarning, f.Severity)
	assert.Equal(t, audit.OutcomeDenied, f.Outcome)
	assert.Equal(t, "WAF_BLOCKED", f.ErrorCode)
	assert.Equal(t, "../", f.Text)
	assert.Equal(t, 2026, f.From.Year())
	assert.True(t, f.To.IsZero())
}

func TestAuditFilterFromQuery_BadTimestamp(t *testing.T) {
	r := httptest.NewRequest("GET", "/admin/audit?to=yesterday", nil)

	_, err := auditFilterFromQuery(r)
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "VALIDATION_ERROR", ae.Code)
}

func TestWAFRuleRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*wafRuleRequest)
		isValid bool
	}{
		{"valid", func(r *wafRuleRequest) {}, true},
		{"missing_name", func(r *wafRuleRequest) { r.Name = "" }, false},
		{"body_target", func(r *wafRuleRequest) { r.Target = "body" }, true},
		{"all_target", func(r *wafRuleRequest) { r.Target = "all" }, true},
		{"bad_target", func(r *wafRuleRequest) { r.Target = "cookies" }, false},
		{"bad_action", func(r *wafRuleRequest) { r.Action = "teapot" }, false},
		{"broken_regexp", func(r *wafRuleRequest) { r.Pattern = "([unclosed" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := wafRuleRequest{
				Name:    "path-traversal",
				Pattern: `\.\./`,
				Target:  "path",
				Action:  "block",
				Enabled: true,
			}
			tt.mutate(&req)

			err := req.validate()
			if tt.isValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
