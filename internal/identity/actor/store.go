// Copyright (c) 2026 Keyra. All rights reserved.

package actor

import (
	"context"
	"time"
)

// # Actor Data Access

// Store defines the data access contract for actor records.
//
// Pure data access: no authentication business logic lives here beyond
// uniqueness and the soft-delete filter.
type Store interface {

	/*
		Create persists a brand-new actor record.

		Parameters:
		  - ctx: context.Context
		  - actor: *Actor

		Returns:
		  - error: apperr.Conflict on a duplicate identifier within scope, or persistence failures
	*/
	Create(ctx context.Context, actor *Actor) error

	/*
		FindByID returns the actor with the given ID, excluding soft-deleted rows.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - *Actor: Hydrated entity
		  - error: dberr.ErrNotFound or retrieval failures
	*/
	FindByID(ctx context.Context, id string) (*Actor, error)

	/*
		FindByIdentifier returns the actor with the given normalized identifier.

		Description: When tenantID is non-nil the lookup is scoped to that
		tenant, so the same identifier in two tenants never collides. The
		row is returned even when inactive — the service needs the activity
		flags to distinguish ACCOUNT_INACTIVE from INVALID_CREDENTIALS —
		but soft-deleted rows surface their DeletedAt for the same reason.

		Parameters:
		  - ctx: context.Context
		  - identifier: string (already normalized)
		  - tenantID: *string (nil for platform-scoped lookup)

		Returns:
		  - *Actor: Hydrated entity
		  - error: dberr.ErrNotFound or retrieval failures
	*/
	FindByIdentifier(ctx context.Context, identifier string, tenantID *string) (*Actor, error)

	/*
		TouchLastLogin updates last-login metadata.

		Description: Best-effort side effect — a failure here must never
		block a successful login.

		Parameters:
		  - ctx: context.Context
		  - id: string
		  - at: time.Time

		Returns:
		  - error: Persistence failures (callers log and continue)
	*/
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	/*
		Deactivate clears the actor's active flag without deleting the row.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Deactivate(ctx context.Context, id string) error

	/*
		SoftDelete marks the actor as deleted without removing the row.

		Description: Actors are never hard-deleted while referenced by
		sessions or audit entries.

		Parameters:
		  - ctx: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	SoftDelete(ctx context.Context, id string) error
}
