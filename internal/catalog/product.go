// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

// Package catalog is the demo business domain riding on the admission
// core. It exists to exercise the full pipeline end to end: a mutating
// route with quota enforcement, usage counter accounting, and
// tenant-scoped storage.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/validate"
	"github.com/nexioerp/nexio/pkg/slug"
	"github.com/nexioerp/nexio/pkg/uuid"
)

// UsageKindProducts is the quota kind consumed by product creation.
const UsageKindProducts = "products"

// Product is a tenant-scoped catalog entry.
type Product struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"-"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	PriceCent int64     `json:"price_cent"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists products and their usage accounting.
type Store interface {
	// Insert persists a product and bumps the tenant's usage counter
	// in the same transaction.
	Insert(ctx context.Context, p *Product) error

	// FindByID returns one product or apperr.NotFound.
	FindByID(ctx context.Context, id string) (*Product, error)

	// List returns a tenant's products, newest first.
	List(ctx context.Context, tenantID string) ([]Product, error)
}

// CreateInput is the payload of a product creation request.
type CreateInput struct {
	Name      string `json:"name"`
	PriceCent int64  `json:"price_cent"`
}

// Service implements the catalog operations.
type Service struct {
	store Store
	clk   clock.Clock
	log   *slog.Logger
}

// NewService wires the catalog service.
func NewService(store Store, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{store: store, clk: clk, log: log}
}

// Create validates and persists a product. Quota was already admitted
// by the pipeline; this only does the domain write and its accounting.
func (s *Service) Create(ctx context.Context, tenantID, principalID string, in CreateInput) (*Product, error) {
	v := &validate.Validator{}
	if err := v.Required("name", in.Name).
		MaxLen("name", in.Name, 120).
		Custom("price_cent", in.PriceCent < 0, "Must not be negative").
		Err(); err != nil {
		return nil, err
	}

	p := &Product{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      in.Name,
		Slug:      slug.From(in.Name),
		PriceCent: in.PriceCent,
		CreatedBy: principalID,
		CreatedAt: s.clk.Now(),
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info("product created", "product_id", p.ID, "tenant_id", tenantID)
	return p, nil
}

// Get returns one product inside the tenant scope. A product owned by
// another tenant reads as unknown, never as forbidden.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Product, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, apperr.NotFound("product")
	}
	return p, nil
}

// OwnerOf returns the creating principal of a product, for ownership
// checks ahead of tenant binding.
func (s *Service) OwnerOf(ctx context.Context, id string) (string, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.CreatedBy, nil
}

// List returns a tenant's products.
func (s *Service) List(ctx context.Context, tenantID string) ([]Product, error) {
	return s.store.List(ctx, tenantID)
}
