// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvHeader is the stable export column set. Ordering is part of the
// export contract; append new columns at the end only.
var csvHeader = []string{
	"id", "created_at", "request_id", "tenant_id", "principal_id",
	"category", "severity", "action", "resource", "outcome",
	"error_code", "client_ip", "method", "path", "metadata",
}

/*
ExportCSV streams every event matching the filter as CSV.

Parameters:
  - ctx: request context.
  - store: event source.
  - f: search filter.
  - w: destination; the header row is always written, even for an
    empty result.

Returns:
  - error: non-nil on store or write failure.
*/
func ExportCSV(ctx context.Context, store Store, f Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("audit_csv_header_failed: %w", err)
	}

	err := store.SearchAll(ctx, f, func(e Event) error {
		return cw.Write(csvRow(e))
	})
	if err != nil {
		return fmt.Errorf("audit_csv_export_failed: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(e Event) []string {
	var metadata string
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			metadata = string(raw)
		}
	}
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.RequestID,
		e.TenantID,
		e.PrincipalID,
		e.Category,
		string(e.Severity),
		e.Action,
		e.Resource,
		string(e.Outcome),
		e.ErrorCode,
		e.ClientIP,
		e.Method,
		e.Path,
		metadata,
	}
}
