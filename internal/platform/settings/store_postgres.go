// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLoader implements [Loader] over the system.setting table.
type PostgresLoader struct {
	pool *pgxpool.Pool
}

// NewPostgresLoader creates a PostgreSQL-backed settings loader.
func NewPostgresLoader(pool *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

// LoadAll reads every row of system.setting into one snapshot map.
//
// The table stays small (tens of rows), so a full scan per refresh interval
// is cheaper than tracking invalidation.
func (loader *PostgresLoader) LoadAll(ctx context.Context) (map[string]string, error) {
	const query = `SELECT key, value FROM system.setting`

	rows, err := loader.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_settings_load_failed: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("postgres_settings_scan_failed: %w", err)
		}
		values[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_settings_rows_failed: %w", err)
	}

	return values, nil
}
