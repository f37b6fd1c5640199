// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package audit

import (
	"context"

	"github.com/nexioerp/nexio/pkg/pagination"
)

// Store persists and searches audit events.
type Store interface {
	// InsertBatch writes a batch of events in one round trip.
	InsertBatch(ctx context.Context, events []Event) error

	// Search returns matching events, newest first, with the total
	// match count. The page size is capped upstream.
	Search(ctx context.Context, f Filter, p pagination.Params) ([]Event, int64, error)

	// SearchAll streams every match of a filter, newest first, for
	// exports. No page cap applies.
	SearchAll(ctx context.Context, f Filter, yield func(Event) error) error
}
