// Copyright (c) 2026 Keyra. All rights reserved.

// PostgreSQL implementation of the actor store.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped through
// [dberr.Wrap] so domain code never sees driver types.

package actor

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/dberr"
)

// actorColumns is the canonical SELECT column list for iam.actor.
const actorColumns = `
	id, role, tenantid, identifier, displayname,
	credentialhash, externalkey, isactive,
	lastloginat, createdat, updatedat, deletedat`

// PostgresStore implements the Store interface using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the actor Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Create persists a new actor record into the iam.actor table.

Description: Initializes timestamps when absent. A duplicate identifier
within the same scope surfaces as a client-safe Conflict.

Parameters:
  - ctx: context.Context
  - actor: *Actor (Entity to persist)

Returns:
  - error: apperr.Conflict or connectivity errors
*/
func (store *PostgresStore) Create(ctx context.Context, actor *Actor) error {
	const query = `
		INSERT INTO iam.actor (
			id, role, tenantid, identifier, displayname,
			credentialhash, externalkey, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	actor.UpdatedAt = now

	_, err := store.pool.Exec(ctx, query,
		actor.ID,
		actor.Role,
		actor.TenantID,
		actor.Identifier,
		actor.DisplayName,
		actor.CredentialHash,
		actor.ExternalKey,
		actor.IsActive,
		actor.CreatedAt,
		actor.UpdatedAt,
	)

	if err != nil {
		wrapped := dberr.Wrap(err, "actor_store_create_failed")
		if apperr.IsCode(wrapped, "CONFLICT") {
			return apperr.Conflict("Identifier is already registered")
		}
		return wrapped
	}

	return nil
}

/*
FindByID retrieves an actor by primary key, excluding soft-deleted rows.

Parameters:
  - ctx: context.Context
  - id: string (UUIDv7)

Returns:
  - *Actor: Hydrated entity
  - error: dberr.ErrNotFound or execution errors
*/
func (store *PostgresStore) FindByID(ctx context.Context, id string) (*Actor, error) {
	query := `SELECT ` + actorColumns + `
		FROM iam.actor
		WHERE id = $1 AND deletedat IS NULL`

	return store.scanOne(ctx, query, id)
}

/*
FindByIdentifier retrieves an actor by normalized identifier within a tenant scope.

Description: tenantID nil matches platform-scoped rows (NULL tenant);
otherwise the lookup is confined to the tenant, preventing cross-tenant
identifier collisions. Soft-deleted rows are returned last so a live row
always wins when an identifier was re-registered after deletion.

Parameters:
  - ctx: context.Context
  - identifier: string (already normalized)
  - tenantID: *string

Returns:
  - *Actor: Hydrated entity
  - error: dberr.ErrNotFound or execution errors
*/
func (store *PostgresStore) FindByIdentifier(ctx context.Context, identifier string, tenantID *string) (*Actor, error) {
	query := `SELECT ` + actorColumns + `
		FROM iam.actor
		WHERE identifier = $1 AND tenantid IS NOT DISTINCT FROM $2
		ORDER BY (deletedat IS NULL) DESC, createdat DESC
		LIMIT 1`

	return store.scanOne(ctx, query, identifier, tenantID)
}

/*
TouchLastLogin updates only the last-login timestamp.

Description: Best-effort metadata write; callers must not fail a login on error.

Parameters:
  - ctx: context.Context
  - id: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = "UPDATE iam.actor SET lastloginat = $2 WHERE id = $1 AND deletedat IS NULL"
	_, err := store.pool.Exec(ctx, query, id, at)
	return dberr.Wrap(err, "actor_store_touch_last_login_failed")
}

/*
Deactivate clears the active flag for an actor.

Parameters:
  - ctx: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) Deactivate(ctx context.Context, id string) error {
	const query = "UPDATE iam.actor SET isactive = FALSE, updatedat = $2 WHERE id = $1 AND deletedat IS NULL"
	_, err := store.pool.Exec(ctx, query, id, time.Now())
	return dberr.Wrap(err, "actor_store_deactivate_failed")
}

/*
SoftDelete marks an actor as deleted using their ID.

Description: Retention-friendly deletion by setting deletedat. The row
stays referenced by sessions and audit entries.

Parameters:
  - ctx: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	const query = "UPDATE iam.actor SET deletedat = $2, updatedat = $2 WHERE id = $1 AND deletedat IS NULL"
	_, err := store.pool.Exec(ctx, query, id, time.Now())
	return dberr.Wrap(err, "actor_store_soft_delete_failed")
}

// scanOne executes a single-row actor query and hydrates the entity.
func (store *PostgresStore) scanOne(ctx context.Context, query string, args ...any) (*Actor, error) {
	actor := &Actor{}
	err := store.pool.QueryRow(ctx, query, args...).Scan(
		&actor.ID,
		&actor.Role,
		&actor.TenantID,
		&actor.Identifier,
		&actor.DisplayName,
		&actor.CredentialHash,
		&actor.ExternalKey,
		&actor.IsActive,
		&actor.LastLoginAt,
		&actor.CreatedAt,
		&actor.UpdatedAt,
		&actor.DeletedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err, "actor_store_find_failed")
	}

	return actor, nil
}
