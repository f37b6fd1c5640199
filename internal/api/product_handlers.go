// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexioerp/nexio/internal/catalog"
	"github.com/nexioerp/nexio/internal/platform/respond"
	"github.com/nexioerp/nexio/internal/platform/validate"
)

// handleProductCreate handles POST /products. Quota was already checked
// by the pipeline; the counter bump rides the insert transaction.
func (s *Server) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, r, validate.ErrInvalidJSON)
		return
	}

	rc := requestContext(r)
	product, err := s.catalog.Create(r.Context(), rc.TenantID(), rc.PrincipalID(), in)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Created(w, product)
}

// productOwner resolves the creating principal for the ownership check
// on single-product routes.
func (s *Server) productOwner(r *http.Request) (string, string, error) {
	owner, err := s.catalog.OwnerOf(r.Context(), chi.URLParam(r, "productID"))
	return owner, "", err
}

// handleProductGet handles GET /products/{productID}. The pipeline
// already settled ownership; the service re-scopes by tenant so a
// foreign product reads as unknown.
func (s *Server) handleProductGet(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	product, err := s.catalog.Get(r.Context(), rc.TenantID(), chi.URLParam(r, "productID"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, product)
}

// handleProductList handles GET /products.
func (s *Server) handleProductList(w http.ResponseWriter, r *http.Request) {
	rc := requestContext(r)
	products, err := s.catalog.List(r.Context(), rc.TenantID())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, products)
}
