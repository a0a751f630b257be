// Copyright (c) 2026 Keyra. All rights reserved.

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyrahq/keyra/pkg/pagination"
)

// PostgresStore implements the Store interface using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the audit Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Append persists one entry into the iam.audit_log table.

Parameters:
  - ctx: context.Context
  - entry: *Entry

Returns:
  - error: Storage failures
*/
func (store *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	const query = `
		INSERT INTO iam.audit_log (
			id, sessionid, actorid, eventtype, outcome, message, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := store.pool.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.ActorID,
		entry.EventType,
		entry.Outcome,
		entry.Message,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("audit_store_append_failed: %w", err)
	}

	return nil
}

/*
List returns entries matching the filter, newest first.

Description: Filter fields are optional; NULL-coalesced predicates let a
single prepared statement serve every combination.

Parameters:
  - ctx: context.Context
  - filter: Filter
  - params: pagination.Params

Returns:
  - []Entry: One page of entries
  - int: Total matching count
  - error: Execution errors
*/
func (store *PostgresStore) List(ctx context.Context, filter Filter, params pagination.Params) ([]Entry, int, error) {
	const countQuery = `
		SELECT COUNT(*)
		FROM iam.audit_log
		WHERE ($1 = '' OR actorid::text = $1)
		  AND ($2 = '' OR eventtype = $2)
		  AND ($3 = '' OR outcome = $3)`

	total := 0
	err := store.pool.QueryRow(ctx, countQuery, filter.ActorID, filter.EventType, filter.Outcome).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("audit_store_count_failed: %w", err)
	}

	const listQuery = `
		SELECT id, sessionid, actorid, eventtype, outcome, message, createdat
		FROM iam.audit_log
		WHERE ($1 = '' OR actorid::text = $1)
		  AND ($2 = '' OR eventtype = $2)
		  AND ($3 = '' OR outcome = $3)
		ORDER BY createdat DESC, id DESC
		LIMIT $4 OFFSET $5`

	rows, err := store.pool.Query(ctx, listQuery,
		filter.ActorID, filter.EventType, filter.Outcome,
		params.Limit, params.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("audit_store_list_failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, params.Limit)
	for rows.Next() {
		var entry Entry
		err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.ActorID,
			&entry.EventType,
			&entry.Outcome,
			&entry.Message,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("audit_store_scan_failed: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("audit_store_rows_failed: %w", err)
	}

	return entries, total, nil
}
