// Copyright (c) 2026 Keyra. All rights reserved.

// Package session implements the registry of refresh sessions.
//
// # Lifecycle
//
// A session is created at login, refreshed at most once (its successor
// carries the chain forward), and ends revoked or expired. Rows in a
// chain share a chain id so a replayed refresh token can take down every
// descendant in one statement.
package session

import "time"

// Revocation reasons recorded on the session row.
const (
	// ReasonLogout marks a voluntary revocation by the session owner.
	ReasonLogout = "logout"

	// ReasonReplay marks a chain revoked because a spent refresh token
	// was presented again.
	ReasonReplay = "replay"

	// ReasonDeactivated marks sessions revoked when the actor was
	// deactivated or deleted.
	ReasonDeactivated = "deactivated"
)

// Session represents one issued token pair and its bookkeeping state.
//
// # Invariants
//
//   - At most one row per chain is live (not refreshed, not revoked, not
//     expired) at any time.
//   - RefreshedAt and RevokedAt are terminal: once set they never clear.
type Session struct {
	// ID is the UUIDv7 primary key, embedded in both tokens as `sid`.
	ID string `json:"id"`
	// ChainID groups a session with every successor produced by refresh.
	// The first session of a chain is its own chain id.
	ChainID string `json:"chain_id"`
	// ActorID is the owner of the session.
	ActorID string `json:"actor_id"`
	// AccessTokenHash is the SHA-256 hex of the issued access token.
	AccessTokenHash string `json:"-"`
	// RefreshTokenHash is the SHA-256 hex of the issued refresh token.
	RefreshTokenHash string `json:"-"`
	// Fingerprint is opaque client metadata (user agent, ip) for display.
	Fingerprint string `json:"fingerprint,omitempty"`

	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// RefreshedAt is set when a successor superseded this session.
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	// RevokedAt is set when the session was revoked.
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	// RevokeReason explains the revocation (logout, replay, deactivated).
	RevokeReason *string `json:"revoke_reason,omitempty"`
}

// IsRevoked reports whether the session reached the revoked terminal state.
func (session *Session) IsRevoked() bool { return session.RevokedAt != nil }

// IsRefreshed reports whether a successor already superseded this session.
func (session *Session) IsRefreshed() bool { return session.RefreshedAt != nil }

// IsExpired reports whether the session's refresh window has passed.
func (session *Session) IsExpired(now time.Time) bool {
	return !session.ExpiresAt.After(now)
}

// IsLive reports whether the session can still be refreshed or revoked:
// not superseded, not revoked, and not past expiry.
func (session *Session) IsLive(now time.Time) bool {
	return !session.IsRefreshed() && !session.IsRevoked() && !session.IsExpired(now)
}
