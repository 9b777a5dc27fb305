package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"fleetops/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_RestoresRevokedGrant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	view := e.createPermission(t, "bookings.view")
	e.createPermission(t, "bookings.create")

	st, err := e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, st.Status)
	assert.EqualValues(t, 2, st.TotalPermissions)
	assert.EqualValues(t, 2, st.SuperadminPermissions)

	// revoke behind the service's back
	require.NoError(t, e.db.Where("permission_id = ?", view.ID).Delete(&model.RolePermission{}).Error)

	st, err = e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, st.Status)
	assert.EqualValues(t, 1, st.MissingCount)
	require.Len(t, st.Missing, 1)
	assert.Equal(t, "bookings.view", st.Missing[0].Name)

	res, err := e.superadmin.Repair(ctx, TriggerManual)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.GrantedCount)
	assert.False(t, res.RoleCreated)

	st, err = e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, st.Status)
	assert.EqualValues(t, 0, st.MissingCount)
	assert.Empty(t, st.Missing)
	assert.Contains(t, e.events.Events(), EventSuperadminRepair)
}

func TestRepair_IsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createPermission(t, "drivers.view")

	first, err := e.superadmin.Repair(ctx, TriggerManual)
	require.NoError(t, err)
	assert.EqualValues(t, 0, first.GrantedCount)

	second, err := e.superadmin.Repair(ctx, TriggerManual)
	require.NoError(t, err)
	assert.EqualValues(t, 0, second.GrantedCount)
	assert.EqualValues(t, 0, e.auditCount(t, model.ActionRepairSuperadmin))
}

func TestRepair_CreatesMissingSuperadminRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// a permission inserted without going through the service has no grant
	perm := &model.Permission{Name: "vehicles.view", Resource: "vehicles", Action: "view"}
	require.NoError(t, e.perms.Create(ctx, perm))

	st, err := e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.RoleID)
	assert.EqualValues(t, 1, st.MissingCount)
	assert.Equal(t, StatusIncomplete, st.Status)

	res, err := e.superadmin.Repair(ctx, TriggerStartup)
	require.NoError(t, err)
	assert.True(t, res.RoleCreated)
	assert.EqualValues(t, 1, res.GrantedCount)

	role, err := e.roles.FindByName(ctx, model.SuperadminRoleName)
	require.NoError(t, err)
	assert.True(t, role.IsSystem)
	assert.Equal(t, model.SuperadminRoleDescription, role.Description)
	assert.EqualValues(t, 1, e.auditCount(t, model.ActionSuperadminAutoRole))
	assert.EqualValues(t, 1, e.auditCount(t, model.ActionRepairSuperadmin))
}

func TestRepair_RecreatesDeletedSuperadminRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createPermission(t, "finance.view")

	role, err := e.roles.FindByName(ctx, model.SuperadminRoleName)
	require.NoError(t, err)
	require.NoError(t, e.roles.Delete(ctx, role.ID))

	res, err := e.superadmin.Repair(ctx, TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.RoleCreated)
	assert.EqualValues(t, 1, res.GrantedCount)

	allowed, err := e.authz.Allowed(ctx, model.SuperadminRoleName, "finance.view")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGrantToSuperadmin_NeverDoubleGrants(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	perm := e.createPermission(t, "payslips.view")

	role, err := e.superadmin.EnsureSuperadminRole(ctx)
	require.NoError(t, err)

	pid := mustUUID(t, perm.ID)
	require.NoError(t, e.superadmin.GrantToSuperadmin(ctx, pid))
	require.NoError(t, e.superadmin.GrantToSuperadmin(ctx, pid))

	granted, err := e.perms.CountGranted(ctx, role.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, granted)
}

func TestStatus_EmptyStoreIsComplete(t *testing.T) {
	e := newTestEnv(t)

	st, err := e.superadmin.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, st.Status)
	assert.EqualValues(t, 0, st.TotalPermissions)
}

func TestRepair_ConcurrentWithPermissionCreation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := e.rbac.CreatePermission(ctx, CreatePermissionRequest{Name: fmt.Sprintf("depots.action%d", i)})
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := e.superadmin.Repair(ctx, TriggerManual)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := e.superadmin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, st.Status)
	assert.EqualValues(t, 0, st.MissingCount)
	assert.EqualValues(t, n, st.TotalPermissions)

	role, err := e.roles.FindByName(ctx, model.SuperadminRoleName)
	require.NoError(t, err)
	var rows []struct {
		PermissionID string
		Count        int64
	}
	require.NoError(t, e.db.Model(&model.RolePermission{}).
		Select("permission_id, COUNT(*) AS count").
		Where("role_id = ?", role.ID).
		Group("permission_id").
		Scan(&rows).Error)
	require.Len(t, rows, n)
	for _, r := range rows {
		assert.EqualValues(t, 1, r.Count, "permission %s", r.PermissionID)
	}
}
