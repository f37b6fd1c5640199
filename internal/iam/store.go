// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package iam

import "context"

// PrincipalStore is the read surface the admission core needs over
// principals. Account lifecycle (signup, profile edits) lives in a
// separate service and is out of scope here.
type PrincipalStore interface {
	// FindByID returns the principal or apperr.NotFound.
	FindByID(ctx context.Context, id string) (*Principal, error)

	// FindByEmail returns the principal or apperr.NotFound. Used by the
	// login flow and the guest-ownership path.
	FindByEmail(ctx context.Context, email string) (*Principal, error)

	// CredentialByEmail returns the principal id and password hash for
	// the login flow, or apperr.NotFound.
	CredentialByEmail(ctx context.Context, email string) (id, passwordHash string, err error)

	// GroupsOf returns the permission-group names the principal belongs
	// to, directly or through nesting.
	GroupsOf(ctx context.Context, principalID string) ([]string, error)
}
