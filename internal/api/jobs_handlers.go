// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexioerp/nexio/internal/jobs"
	"github.com/nexioerp/nexio/internal/platform/respond"
	"github.com/nexioerp/nexio/internal/platform/validate"
)

type jobSubmitRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleJobSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, validate.ErrInvalidJSON)
		return
	}
	v := &validate.Validator{}
	if err := v.Required("kind", req.Kind).Err(); err != nil {
		respond.Error(w, r, err)
		return
	}

	rc := requestContext(r)
	job, err := s.runner.Submit(r.Context(), req.Kind, req.Payload, rc.TenantID(), rc.PrincipalID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Accepted(w, jobs.ViewOf(job))
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	view, err := s.runner.StatusFor(r.Context(), chi.URLParam(r, "jobID"), rc.TenantID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, view)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	view, err := s.runner.CancelFor(r.Context(), chi.URLParam(r, "jobID"), rc.TenantID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, view)
}
