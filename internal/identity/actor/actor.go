// Copyright (c) 2026 Keyra. All rights reserved.

/*
Package actor implements the credential store of the identity core.

It defines the Actor entity — one authenticable identity with a role, an
optional tenant binding, and either a local secret hash or an external
identity key — and the data access contracts around it.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies and encapsulate the rules that decide whether an
identity may authenticate at all.
*/
package actor

import (
	"time"
)

// # Domain Entities

// Actor represents one authenticable identity.
//
// # Credential Shapes
//
// A local actor carries a bcrypt CredentialHash and an empty ExternalKey.
// An SSO-mapped actor carries an ExternalKey and no local hash. Exactly one
// of the two is set; both are omitted from JSON for security.
type Actor struct {
	ID          string  `json:"id"`
	Role        string  `json:"role"`
	TenantID    *string `json:"tenant_id,omitempty"` // nil means platform-scoped
	Identifier  string  `json:"identifier"`
	DisplayName string  `json:"display_name,omitempty"`

	CredentialHash string `json:"-"`
	ExternalKey    string `json:"-"`

	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// CanAuthenticate reports whether this actor is allowed to authenticate.
//
// # Invariant
//
// A soft-deleted or deactivated actor must never authenticate successfully,
// regardless of credential correctness.
func (a *Actor) CanAuthenticate() bool {
	return a.DeletedAt == nil && a.IsActive
}

// TenantString returns the tenant id, or "" for platform-scoped actors.
func (a *Actor) TenantString() string {
	if a.TenantID == nil {
		return ""
	}
	return *a.TenantID
}

// # Field Identifiers

// Global field names for validation and identity mapping in the actor domain.
const (
	FieldIdentifier  = "identifier"
	FieldSecret      = "secret"
	FieldExternalKey = "external_key"
	FieldDisplayName = "display_name"
	FieldTenantID    = "tenant_id"
	FieldRole        = "role"
)
