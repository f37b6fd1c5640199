// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package waf

import (
	"context"

	"github.com/nexioerp/nexio/pkg/pagination"
)

// RuleStore persists the screening ruleset.
type RuleStore interface {
	// ListEnabled returns the enabled rules in evaluation order:
	// priority descending, id ascending.
	ListEnabled(ctx context.Context) ([]Rule, error)

	// ListAll returns every rule, enabled or not, in evaluation order.
	ListAll(ctx context.Context, p pagination.Params) ([]Rule, int64, error)

	// Create inserts a rule and returns it with its assigned id.
	Create(ctx context.Context, r *Rule) (*Rule, error)

	// Update rewrites a rule or returns apperr.NotFound.
	Update(ctx context.Context, r *Rule) (*Rule, error)

	// Delete removes a rule. Unknown ids return apperr.NotFound.
	Delete(ctx context.Context, id int64) error

	// Disable switches a rule off, recording why. Used when a stored
	// pattern stops compiling.
	Disable(ctx context.Context, id int64, reason string) error
}

// HitStore records rule matches.
type HitStore interface {
	Insert(ctx context.Context, h *Hit) error
}
