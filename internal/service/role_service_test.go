package service

import (
	"context"
	"testing"

	"fleetops/internal/model"
	"fleetops/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePermission_GrantsSuperadminImmediately(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	perm, err := e.rbac.CreatePermission(ctx, CreatePermissionRequest{Name: "bookings.view", Description: "View bookings"})
	require.NoError(t, err)
	assert.Equal(t, "bookings", perm.Resource)
	assert.Equal(t, "view", perm.Action)

	allowed, err := e.authz.Allowed(ctx, model.SuperadminRoleName, "bookings.view")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Contains(t, e.events.Events(), EventPermissionCreated)
	assert.EqualValues(t, 1, e.auditCount(t, model.ActionCreatePermission))
}

func TestCreatePermission_RejectsDuplicates(t *testing.T) {
	e := newTestEnv(t)
	e.createPermission(t, "drivers.view")

	_, err := e.rbac.CreatePermission(context.Background(), CreatePermissionRequest{Name: "drivers.view"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindDuplicateKey))
}

func TestCreatePermission_RequiresAction(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.rbac.CreatePermission(context.Background(), CreatePermissionRequest{Name: "reports"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))
}

func TestCreateRole_Rules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	view := e.createPermission(t, "vehicles.view")

	role := e.createRole(t, "dispatcher", view.ID)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, "vehicles.view", role.Permissions[0].Name)

	_, err := e.rbac.CreateRole(ctx, CreateRoleRequest{Name: "dispatcher"})
	assert.True(t, apperror.Is(err, apperror.KindDuplicateKey))

	_, err = e.rbac.CreateRole(ctx, CreateRoleRequest{Name: model.SuperadminRoleName})
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
}

func TestAssignPermissions_SuperadminIsForbidden(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createPermission(t, "finance.view")

	role, err := e.roles.FindByName(ctx, model.SuperadminRoleName)
	require.NoError(t, err)

	_, err = e.rbac.AssignPermissions(ctx, role.ID.String(), AssignPermissionsRequest{PermissionIDs: []string{}})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	st, err := e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, st.Status)
}

func TestAssignPermissions_ReplacesWholeSet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	view := e.createPermission(t, "drivers.view")
	create := e.createPermission(t, "drivers.create")
	role := e.createRole(t, "dispatcher", view.ID)

	updated, err := e.rbac.AssignPermissions(ctx, role.ID, AssignPermissionsRequest{PermissionIDs: []string{create.ID, create.ID}})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
	assert.Equal(t, "drivers.create", updated.Permissions[0].Name)

	allowed, err := e.authz.Allowed(ctx, "dispatcher", "drivers.view")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAssignPermissions_ReportsBadIDs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	role := e.createRole(t, "dispatcher")

	_, err := e.rbac.AssignPermissions(ctx, role.ID, AssignPermissionsRequest{PermissionIDs: []string{"not-a-uuid"}})
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindValidationFailed, appErr.Kind)
	assert.Equal(t, map[string]interface{}{"invalid_ids": []string{"not-a-uuid"}}, appErr.Details)

	unknown := "7d9f4c1e-4a51-4b55-9d0c-1f2e3a4b5c6d"
	_, err = e.rbac.AssignPermissions(ctx, role.ID, AssignPermissionsRequest{PermissionIDs: []string{unknown}})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, map[string]interface{}{"unknown_ids": []string{unknown}}, appErr.Details)
}

func TestDeleteRole_ConflictWhileAssigned(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	role := e.createRole(t, "dispatcher")
	e.createRole(t, "planner")

	user, err := e.accounts.CreateUser(ctx, CreateUserRequest{
		Username: "dana",
		Email:    "dana@example.com",
		Password: "secret123",
		Role:     "dispatcher",
	})
	require.NoError(t, err)

	err = e.rbac.DeleteRole(ctx, role.ID)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	_, err = e.rbac.GetRole(ctx, role.ID)
	require.NoError(t, err, "role must survive the refused delete")

	_, err = e.accounts.AssignRole(ctx, user.ID.String(), AssignRoleRequest{Role: "planner"})
	require.NoError(t, err)
	require.NoError(t, e.rbac.DeleteRole(ctx, role.ID))

	_, err = e.rbac.GetRole(ctx, role.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDeleteRole_ProtectedRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createPermission(t, "audit.view")

	role, err := e.roles.FindByName(ctx, model.SuperadminRoleName)
	require.NoError(t, err)

	err = e.rbac.DeleteRole(ctx, role.ID.String())
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestUpdateRole_Rules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createPermission(t, "audit.view")
	super, err := e.roles.FindByName(ctx, model.SuperadminRoleName)
	require.NoError(t, err)

	off := false
	_, err = e.rbac.UpdateRole(ctx, super.ID.String(), UpdateRoleRequest{IsActive: &off})
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	_, err = e.rbac.UpdateRole(ctx, super.ID.String(), UpdateRoleRequest{Name: "root"})
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	role := e.createRole(t, "dispatcher")
	renamed, err := e.rbac.UpdateRole(ctx, role.ID, UpdateRoleRequest{Name: "router", Description: "Routes bookings"})
	require.NoError(t, err)
	assert.Equal(t, "router", renamed.Name)
	assert.Equal(t, "Routes bookings", renamed.Description)
}

func TestGetRole_MalformedID(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.rbac.GetRole(context.Background(), "nope")
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))
}

func TestListPermissionsGrouped(t *testing.T) {
	e := newTestEnv(t)
	e.createPermission(t, "vehicles.view")
	e.createPermission(t, "drivers.view")
	e.createPermission(t, "drivers.create")

	groups, err := e.rbac.ListPermissionsGrouped(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "drivers", groups[0].Resource)
	assert.Len(t, groups[0].Permissions, 2)
	assert.Equal(t, "vehicles", groups[1].Resource)
}

func TestSeedDefaults(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.rbac.SeedDefaults(ctx))

	st, err := e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, st.Status)
	assert.EqualValues(t, len(defaultPermissions), st.TotalPermissions)

	for name := range defaultRoles {
		_, err := e.roles.FindByName(ctx, name)
		require.NoError(t, err, name)
	}

	allowed, err := e.authz.Allowed(ctx, "admin", "finance.import")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = e.authz.Allowed(ctx, "admin", "superadmin.repair")
	require.NoError(t, err)
	assert.False(t, allowed)

	// a second run changes nothing
	require.NoError(t, e.rbac.SeedDefaults(ctx))
	assert.EqualValues(t, 1, e.auditCount(t, model.ActionSeedRBAC))
}

func TestSeedDefaults_KeepsAdministratorGrants(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, e.rbac.SeedDefaults(ctx))

	driver, err := e.roles.FindByName(ctx, "driver")
	require.NoError(t, err)
	_, err = e.rbac.AssignPermissions(ctx, driver.ID.String(), AssignPermissionsRequest{PermissionIDs: []string{}})
	require.NoError(t, err)

	require.NoError(t, e.rbac.SeedDefaults(ctx))
	names, err := e.rbac.GetPermissionsByRoleName(ctx, "driver")
	require.NoError(t, err)
	assert.Empty(t, names)
}
