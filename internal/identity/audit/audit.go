// Copyright (c) 2026 Keyra. All rights reserved.

// Package audit implements the append-only trail of authentication events.
//
// # Design
//
// Recording is asynchronous and lossy under pressure: an audit write must
// never block or fail a login, refresh, or revocation. Reads are served
// to platform administrators through a paginated listing.
package audit

import (
	"context"
	"time"

	"github.com/keyrahq/keyra/pkg/pagination"
)

// Event types recorded in the trail.
const (
	EventIssued    = "issued"
	EventRefreshed = "refreshed"
	EventRevoked   = "revoked"
	EventFailed    = "failed"
)

// Outcomes of the recorded operation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one append-only audit record.
//
// ActorID and SessionID are optional: a failed login for an unknown
// identifier has neither.
type Entry struct {
	ID        string    `json:"id"`
	SessionID *string   `json:"session_id,omitempty"`
	ActorID   *string   `json:"actor_id,omitempty"`
	EventType string    `json:"event_type"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows an audit listing. Zero values match everything.
type Filter struct {
	ActorID   string
	EventType string
	Outcome   string
}

// Store defines the persistence contract for audit entries.
type Store interface {
	/*
		Append persists one entry. Entries are immutable once written.

		Parameters:
		  - ctx: context.Context
		  - entry: *Entry

		Returns:
		  - error: Storage failures
	*/
	Append(ctx context.Context, entry *Entry) error

	/*
		List returns entries matching the filter, newest first.

		Parameters:
		  - ctx: context.Context
		  - filter: Filter
		  - params: pagination.Params

		Returns:
		  - []Entry: One page of entries
		  - int: Total matching count
		  - error: Execution errors
	*/
	List(ctx context.Context, filter Filter, params pagination.Params) ([]Entry, int, error)
}
