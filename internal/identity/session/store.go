// Copyright (c) 2026 Keyra. All rights reserved.

package session

import (
	"context"
	"errors"
)

// Sentinel errors returned by [Store.Supersede] so the service layer can
// distinguish a replay (chain compromise signal) from a stale token.
var (
	// ErrReplay means the session was already refreshed or revoked when
	// the supersede was attempted. The caller should revoke the chain.
	ErrReplay = errors.New("session already spent")

	// ErrSessionExpired means the session's refresh window has passed.
	ErrSessionExpired = errors.New("session expired")
)

// Store defines the persistence contract for the session registry.
//
// # Concurrency
//
// Supersede must be atomic: when two callers race to refresh the same
// session, exactly one succeeds and the other observes [ErrReplay]. The
// PostgreSQL implementation enforces this with a conditional UPDATE, not
// a read-then-write.
type Store interface {
	/*
		Create persists a new session row.

		Parameters:
		  - ctx: context.Context
		  - session: *Session

		Returns:
		  - error: Storage failures
	*/
	Create(ctx context.Context, session *Session) error

	/*
		FindByID retrieves a session by primary key, regardless of state.

		Description: Spent and revoked rows are returned so callers can
		classify replays; liveness is the caller's check.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - *Session: Hydrated session
		  - error: dberr.ErrNotFound or execution errors
	*/
	FindByID(ctx context.Context, id string) (*Session, error)

	/*
		Supersede atomically marks the old session refreshed and inserts
		its successor in one transaction.

		Description: The mark succeeds only while the old session is live.
		Exactly one of two concurrent calls for the same session wins.

		Parameters:
		  - ctx: context.Context
		  - oldID: string (Session being spent)
		  - successor: *Session (Replacement; must share the chain id)

		Returns:
		  - error: ErrReplay, ErrSessionExpired, dberr.ErrNotFound, or
		    storage failures
	*/
	Supersede(ctx context.Context, oldID string, successor *Session) error

	/*
		Revoke marks one session revoked with a reason. Idempotent: an
		already-revoked session is left untouched.

		Parameters:
		  - ctx: context.Context
		  - id: string
		  - reason: string

		Returns:
		  - error: Execution errors
	*/
	Revoke(ctx context.Context, id string, reason string) error

	/*
		RevokeChain revokes every non-revoked session sharing a chain id.

		Description: Used on refresh-token replay to invalidate the whole
		descendant line of a compromised chain.

		Parameters:
		  - ctx: context.Context
		  - chainID: string
		  - reason: string

		Returns:
		  - error: Execution errors
	*/
	RevokeChain(ctx context.Context, chainID string, reason string) error

	/*
		RevokeAllForActor revokes every live session owned by an actor.

		Parameters:
		  - ctx: context.Context
		  - actorID: string
		  - reason: string

		Returns:
		  - error: Execution errors
	*/
	RevokeAllForActor(ctx context.Context, actorID string, reason string) error

	/*
		TouchActivity updates the last-activity timestamp. Best-effort:
		callers must not fail a request on error.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - error: Execution errors
	*/
	TouchActivity(ctx context.Context, id string) error

	/*
		DeleteExpired permanently removes sessions past their expiry.

		Parameters:
		  - ctx: context.Context

		Returns:
		  - error: Cleanup failures
	*/
	DeleteExpired(ctx context.Context) error
}
