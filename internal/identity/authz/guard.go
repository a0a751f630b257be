// Copyright (c) 2026 Keyra. All rights reserved.

package authz

import (
	"errors"

	"github.com/keyrahq/keyra/internal/platform/apperr"
	"github.com/keyrahq/keyra/internal/platform/sec"
)

// errCrossTenant is attached as the cause of cross-tenant denials so audit
// consumers can distinguish them from plain role mismatches. The client
// sees only the generic FORBIDDEN envelope either way.
var errCrossTenant = errors.New("cross-tenant access attempt")

// Guard evaluates verified principals against required role and tenant scopes.
//
// # Scope
//
// The Guard trusts its input: the principal must come from a validated
// token. It performs no token parsing and no storage access.
type Guard struct {
	registry *Registry
}

// NewGuard constructs a Guard over the given role registry.
func NewGuard(registry *Registry) *Guard {
	return &Guard{registry: registry}
}

// Registry exposes the underlying role registry.
func (g *Guard) Registry() *Registry { return g.registry }

/*
Authorize accepts or rejects a principal for a required role and optional tenant.

Description: Role satisfaction follows the declared hierarchy only. When
requiredTenant is non-nil, tenant isolation applies on top of the role
check unless the principal's role is platform-scoped.

Parameters:
  - principal: Verified identity from a validated access token.
  - requiredRole: Role the operation demands.
  - requiredTenant: Tenant the operation acts within; nil for tenant-agnostic operations.

Returns:
  - error: nil on Allow; apperr.Forbidden on Deny
*/
func (g *Guard) Authorize(principal sec.Principal, requiredRole Role, requiredTenant *string) error {
	if _, known := g.registry.Lookup(principal.Role); !known {
		return apperr.Forbidden("Insufficient permissions")
	}

	if !g.registry.Satisfies(Role(principal.Role), requiredRole) {
		return apperr.Forbidden("Insufficient permissions")
	}

	if requiredTenant != nil {
		return g.AuthorizeTenant(principal, *requiredTenant)
	}

	return nil
}

/*
AuthorizeTenant enforces tenant isolation for a principal.

Description: A tenant-scoped principal may only act within its own tenant.
Platform-scoped roles bypass the restriction. A cross-tenant attempt is a
Deny (403) — never a NotFound — so protected resources are not enumerable,
while the audit trail still records the distinction via the error cause.

Parameters:
  - principal: Verified identity.
  - tenantID: Tenant the operation acts within.

Returns:
  - error: nil on Allow; apperr.Forbidden on Deny
*/
func (g *Guard) AuthorizeTenant(principal sec.Principal, tenantID string) error {
	descriptor, known := g.registry.Lookup(principal.Role)
	if !known {
		return apperr.Forbidden("Insufficient permissions")
	}

	// Platform-scoped roles carry no tenant restriction.
	if !descriptor.TenantScoped {
		return nil
	}

	if principal.TenantID == "" || principal.TenantID != tenantID {
		denial := apperr.Forbidden("Insufficient permissions")
		denial.Cause = errCrossTenant
		return denial
	}

	return nil
}

// IsCrossTenantDenial reports whether err is a tenant-isolation denial.
// Used by audit logging to label the event without changing the client response.
func IsCrossTenantDenial(err error) bool {
	return errors.Is(err, errCrossTenant)
}
