// Copyright (c) 2026 Keyra. All rights reserved.

// PostgreSQL implementation of the session registry.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyrahq/keyra/internal/platform/dberr"
)

// sessionColumns is the canonical SELECT column list for iam.session.
const sessionColumns = `
	id, chainid, actorid, accesstokenhash, refreshtokenhash, fingerprint,
	issuedat, expiresat, lastactivityat, refreshedat, revokedat, revokereason`

// PostgresStore implements the Store interface using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the session Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Create persists a new session row into the iam.session table.

Parameters:
  - ctx: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (store *PostgresStore) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO iam.session (
			id, chainid, actorid, accesstokenhash, refreshtokenhash, fingerprint,
			issuedat, expiresat, lastactivityat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if session.IssuedAt.IsZero() {
		session.IssuedAt = time.Now()
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = session.IssuedAt
	}

	_, err := store.pool.Exec(ctx, query,
		session.ID,
		session.ChainID,
		session.ActorID,
		session.AccessTokenHash,
		session.RefreshTokenHash,
		session.Fingerprint,
		session.IssuedAt,
		session.ExpiresAt,
		session.LastActivityAt,
	)

	if err != nil {
		return dberr.Wrap(err, "session_store_create_failed")
	}

	return nil
}

/*
FindByID retrieves a session by primary key, regardless of state.

Parameters:
  - ctx: context.Context
  - id: string

Returns:
  - *Session: Hydrated session
  - error: dberr.ErrNotFound or execution errors
*/
func (store *PostgresStore) FindByID(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM iam.session WHERE id = $1`
	return scanSession(store.pool.QueryRow(ctx, query, id))
}

/*
Supersede atomically marks the old session refreshed and inserts its
successor in a single transaction.

Description: The conditional UPDATE is the linearization point. Its
predicate only matches a live row, so of two concurrent refreshes of the
same session exactly one affects a row; the loser classifies the old
row's state into ErrReplay or ErrSessionExpired.

Parameters:
  - ctx: context.Context
  - oldID: string
  - successor: *Session

Returns:
  - error: ErrReplay, ErrSessionExpired, dberr.ErrNotFound, or storage failures
*/
func (store *PostgresStore) Supersede(ctx context.Context, oldID string, successor *Session) error {
	transaction, err := store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("session_store_supersede_begin_failed: %w", err)
	}
	defer transaction.Rollback(ctx)

	const spend = `
		UPDATE iam.session
		SET refreshedat = NOW(), lastactivityat = NOW()
		WHERE id = $1
		  AND refreshedat IS NULL
		  AND revokedat IS NULL
		  AND expiresat > NOW()`

	tag, err := transaction.Exec(ctx, spend, oldID)
	if err != nil {
		return fmt.Errorf("session_store_supersede_spend_failed: %w", err)
	}

	// 0 rows: the session was not live. Classify why for the caller.
	if tag.RowsAffected() == 0 {
		return store.classifySpendFailure(ctx, oldID)
	}

	const insert = `
		INSERT INTO iam.session (
			id, chainid, actorid, accesstokenhash, refreshtokenhash, fingerprint,
			issuedat, expiresat, lastactivityat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if successor.IssuedAt.IsZero() {
		successor.IssuedAt = time.Now()
	}
	if successor.LastActivityAt.IsZero() {
		successor.LastActivityAt = successor.IssuedAt
	}

	_, err = transaction.Exec(ctx, insert,
		successor.ID,
		successor.ChainID,
		successor.ActorID,
		successor.AccessTokenHash,
		successor.RefreshTokenHash,
		successor.Fingerprint,
		successor.IssuedAt,
		successor.ExpiresAt,
		successor.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("session_store_supersede_insert_failed: %w", err)
	}

	if err := transaction.Commit(ctx); err != nil {
		return fmt.Errorf("session_store_supersede_commit_failed: %w", err)
	}

	return nil
}

// classifySpendFailure inspects a session that refused a conditional
// spend and maps its state to the matching sentinel.
func (store *PostgresStore) classifySpendFailure(ctx context.Context, id string) error {
	stale, err := store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case stale.IsRefreshed() || stale.IsRevoked():
		return ErrReplay
	case stale.IsExpired(time.Now()):
		return ErrSessionExpired
	default:
		// Lost the race between the UPDATE and this read.
		return ErrReplay
	}
}

/*
Revoke marks one session revoked with a reason.

Description: Idempotent; an already-revoked row keeps its original
timestamp and reason.

Parameters:
  - ctx: context.Context
  - id: string
  - reason: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) Revoke(ctx context.Context, id string, reason string) error {
	const query = `
		UPDATE iam.session
		SET revokedat = NOW(), revokereason = $2
		WHERE id = $1 AND revokedat IS NULL`

	_, err := store.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("session_store_revoke_failed: %w", err)
	}
	return nil
}

/*
RevokeChain revokes every non-revoked session sharing a chain id.

Parameters:
  - ctx: context.Context
  - chainID: string
  - reason: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) RevokeChain(ctx context.Context, chainID string, reason string) error {
	const query = `
		UPDATE iam.session
		SET revokedat = NOW(), revokereason = $2
		WHERE chainid = $1 AND revokedat IS NULL`

	_, err := store.pool.Exec(ctx, query, chainID, reason)
	if err != nil {
		return fmt.Errorf("session_store_revoke_chain_failed: %w", err)
	}
	return nil
}

/*
RevokeAllForActor revokes every live session owned by an actor.

Parameters:
  - ctx: context.Context
  - actorID: string
  - reason: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) RevokeAllForActor(ctx context.Context, actorID string, reason string) error {
	const query = `
		UPDATE iam.session
		SET revokedat = NOW(), revokereason = $2
		WHERE actorid = $1 AND revokedat IS NULL`

	_, err := store.pool.Exec(ctx, query, actorID, reason)
	if err != nil {
		return fmt.Errorf("session_store_revoke_all_failed: %w", err)
	}
	return nil
}

/*
TouchActivity updates only the last-activity timestamp.

Parameters:
  - ctx: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) TouchActivity(ctx context.Context, id string) error {
	const query = "UPDATE iam.session SET lastactivityat = NOW() WHERE id = $1"
	_, err := store.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("session_store_touch_activity_failed: %w", err)
	}
	return nil
}

/*
DeleteExpired permanently removes all sessions past their expiration.

Description: Cleanup task to reclaim storage from stale sessions.

Parameters:
  - ctx: context.Context

Returns:
  - error: Cleanup failures
*/
func (store *PostgresStore) DeleteExpired(ctx context.Context) error {
	const query = "DELETE FROM iam.session WHERE expiresat <= NOW()"
	_, err := store.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("session_store_delete_expired_failed: %w", err)
	}
	return nil
}

// scanSession hydrates one session row.
func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.ChainID,
		&session.ActorID,
		&session.AccessTokenHash,
		&session.RefreshTokenHash,
		&session.Fingerprint,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
		&session.RefreshedAt,
		&session.RevokedAt,
		&session.RevokeReason,
	)

	if err != nil {
		return nil, dberr.Wrap(err, "session_store_find_failed")
	}

	return session, nil
}
