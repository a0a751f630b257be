// Copyright (c) 2026 Keyra. All rights reserved.

/*
Package authz implements role and tenant scoped authorization for the platform.

It defines the role registry (a declared hierarchy of role descriptors) and
the Guard that evaluates a verified principal against a required role and
tenant scope.

# Architecture

The hierarchy is an explicit, declared partial order: a role satisfies
another only when the deployment's descriptors say so. Nothing is inferred
from role names or from a numeric ladder, so adding a new role can never
silently widen an existing one's reach.
*/
package authz

import (
	"fmt"
	"sort"
)

// # Roles

// Role identifies one authorization level in a deployment.
type Role string

// Roles of the default deployment.
const (
	// Default role for standard registered users. Tenant-scoped.
	RoleRegularUser Role = "regularUser"

	// Can manage their tenant's day-to-day resources. Tenant-scoped.
	RoleManager Role = "manager"

	// Administers a single tenant's configuration and members. Tenant-scoped.
	RoleOrganizationAdmin Role = "organizationAdmin"

	// Administers the platform across tenants. Platform-scoped.
	RoleAdmin Role = "admin"

	// Unrestricted system access. Platform-scoped.
	RoleSystemAdmin Role = "systemAdmin"
)

// # Descriptors

// Descriptor declares one role's authorization properties.
type Descriptor struct {
	// Name is the role identifier as it appears in tokens and URLs.
	Name Role

	// TenantScoped binds the role to a single tenant. Platform-scoped
	// roles (TenantScoped=false) carry no tenant restriction.
	TenantScoped bool

	// Satisfies lists the roles this role directly satisfies, in addition
	// to itself. Satisfaction is transitive through the declared edges.
	Satisfies []Role
}

// # Registry

// Registry holds a deployment's role descriptors and the transitive
// closure of their declared hierarchy.
//
// # Concurrency
//
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	descriptors map[Role]Descriptor
	closure     map[Role]map[Role]bool
}

/*
NewRegistry validates descriptors and precomputes the hierarchy closure.

Description: Rejects duplicate names, edges to undeclared roles, and cycles
(the hierarchy must be a partial order).

Parameters:
  - descriptors: The deployment's full role set.

Returns:
  - *Registry: Immutable registry
  - error: Declaration errors
*/
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	registry := &Registry{
		descriptors: make(map[Role]Descriptor, len(descriptors)),
		closure:     make(map[Role]map[Role]bool, len(descriptors)),
	}

	for _, descriptor := range descriptors {
		if descriptor.Name == "" {
			return nil, fmt.Errorf("authz: role descriptor with empty name")
		}
		if _, exists := registry.descriptors[descriptor.Name]; exists {
			return nil, fmt.Errorf("authz: duplicate role %q", descriptor.Name)
		}
		registry.descriptors[descriptor.Name] = descriptor
	}

	// Every declared edge must point at a declared role.
	for _, descriptor := range registry.descriptors {
		for _, satisfied := range descriptor.Satisfies {
			if _, exists := registry.descriptors[satisfied]; !exists {
				return nil, fmt.Errorf("authz: role %q satisfies undeclared role %q", descriptor.Name, satisfied)
			}
		}
	}

	// Compute the reflexive-transitive closure, rejecting cycles.
	for name := range registry.descriptors {
		reachable := map[Role]bool{name: true}
		if err := registry.walk(name, name, reachable, map[Role]bool{}); err != nil {
			return nil, err
		}
		registry.closure[name] = reachable
	}

	return registry, nil
}

// walk performs a depth-first traversal over declared Satisfies edges.
func (r *Registry) walk(origin, current Role, reachable map[Role]bool, onPath map[Role]bool) error {
	onPath[current] = true
	for _, next := range r.descriptors[current].Satisfies {
		if onPath[next] {
			return fmt.Errorf("authz: hierarchy cycle through %q and %q", origin, next)
		}
		if reachable[next] {
			continue
		}
		reachable[next] = true
		if err := r.walk(origin, next, reachable, onPath); err != nil {
			return err
		}
	}
	delete(onPath, current)
	return nil
}

// MustRegistry builds a registry or panics. Intended for startup wiring
// and tests, where a bad declaration is unrecoverable.
func MustRegistry(descriptors ...Descriptor) *Registry {
	registry, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return registry
}

// Default returns the registry of the default deployment.
//
// # Hierarchy
//
//	systemAdmin → admin → organizationAdmin
//	manager → regularUser
//
// systemAdmin and admin are platform-scoped; the rest are tenant-scoped.
func Default() *Registry {
	return MustRegistry(
		Descriptor{Name: RoleRegularUser, TenantScoped: true},
		Descriptor{Name: RoleManager, TenantScoped: true, Satisfies: []Role{RoleRegularUser}},
		Descriptor{Name: RoleOrganizationAdmin, TenantScoped: true, Satisfies: []Role{RoleManager}},
		Descriptor{Name: RoleAdmin, TenantScoped: false, Satisfies: []Role{RoleOrganizationAdmin}},
		Descriptor{Name: RoleSystemAdmin, TenantScoped: false, Satisfies: []Role{RoleAdmin}},
	)
}

// # Queries

// Lookup returns the descriptor for a role name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	descriptor, ok := r.descriptors[Role(name)]
	return descriptor, ok
}

// Satisfies reports whether 'have' meets 'want' under the declared hierarchy.
// A role always satisfies itself.
func (r *Registry) Satisfies(have, want Role) bool {
	reachable, ok := r.closure[have]
	if !ok {
		return false
	}
	return reachable[want]
}

// TenantScoped reports whether the role is bound to a single tenant.
// Unknown roles report true: the safe default is the narrower scope.
func (r *Registry) TenantScoped(role Role) bool {
	descriptor, ok := r.descriptors[role]
	if !ok {
		return true
	}
	return descriptor.TenantScoped
}

// Roles returns the declared role names in stable order.
func (r *Registry) Roles() []Role {
	names := make([]Role, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
