// Copyright (c) 2026 Keyra. All rights reserved.

package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyrahq/keyra/internal/identity/authz"
)

/*
TestRegistry_DefaultHierarchy verifies the declared transitive closure of
the default deployment.
*/
func TestRegistry_DefaultHierarchy(t *testing.T) {
	registry := authz.Default()

	tests := []struct {
		name      string
		have      authz.Role
		want      authz.Role
		satisfies bool
	}{
		{"reflexive", authz.RoleRegularUser, authz.RoleRegularUser, true},
		{"manager_over_user", authz.RoleManager, authz.RoleRegularUser, true},
		{"user_not_manager", authz.RoleRegularUser, authz.RoleManager, false},
		{"org_admin_transitive_user", authz.RoleOrganizationAdmin, authz.RoleRegularUser, true},
		{"admin_over_org_admin", authz.RoleAdmin, authz.RoleOrganizationAdmin, true},
		{"system_admin_transitive", authz.RoleSystemAdmin, authz.RoleOrganizationAdmin, true},
		{"admin_not_system_admin", authz.RoleAdmin, authz.RoleSystemAdmin, false},
		{"unknown_role", authz.Role("ghost"), authz.RoleRegularUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.satisfies, registry.Satisfies(tt.have, tt.want))
		})
	}
}

/*
TestRegistry_TenantScoping checks per-role tenant binding, including the
narrow default for unknown roles.
*/
func TestRegistry_TenantScoping(t *testing.T) {
	registry := authz.Default()

	assert.True(t, registry.TenantScoped(authz.RoleRegularUser))
	assert.True(t, registry.TenantScoped(authz.RoleOrganizationAdmin))
	assert.False(t, registry.TenantScoped(authz.RoleAdmin))
	assert.False(t, registry.TenantScoped(authz.RoleSystemAdmin))

	// Unknown roles get the narrower scope.
	assert.True(t, registry.TenantScoped(authz.Role("ghost")))
}

/*
TestNewRegistry_RejectsCycle ensures a cyclic hierarchy cannot be declared.
*/
func TestNewRegistry_RejectsCycle(t *testing.T) {
	_, err := authz.NewRegistry(
		authz.Descriptor{Name: "a", Satisfies: []authz.Role{"b"}},
		authz.Descriptor{Name: "b", Satisfies: []authz.Role{"c"}},
		authz.Descriptor{Name: "c", Satisfies: []authz.Role{"a"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

/*
TestNewRegistry_RejectsUndeclaredEdge ensures edges must point at declared roles.
*/
func TestNewRegistry_RejectsUndeclaredEdge(t *testing.T) {
	_, err := authz.NewRegistry(
		authz.Descriptor{Name: "a", Satisfies: []authz.Role{"missing"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared")
}

/*
TestNewRegistry_RejectsDuplicates ensures a role can only be declared once.
*/
func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := authz.NewRegistry(
		authz.Descriptor{Name: "a"},
		authz.Descriptor{Name: "a"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

/*
TestRegistry_NoInferredOrdering verifies that two declared but unrelated
roles never satisfy each other.
*/
func TestRegistry_NoInferredOrdering(t *testing.T) {
	registry := authz.MustRegistry(
		authz.Descriptor{Name: "auditor", TenantScoped: false},
		authz.Descriptor{Name: "operator", TenantScoped: true},
	)

	assert.False(t, registry.Satisfies("auditor", "operator"))
	assert.False(t, registry.Satisfies("operator", "auditor"))
	assert.True(t, registry.Satisfies("auditor", "auditor"))
}
