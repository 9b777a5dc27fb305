package repository

import (
	"context"
	"testing"

	"fleetops/internal/model"
	"fleetops/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestPermissionGrants(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	roles := NewRoleRepository(db)
	perms := NewPermissionRepository(db)

	role := &model.Role{Name: "dispatcher"}
	require.NoError(t, roles.Create(ctx, role))
	view := &model.Permission{Name: "drivers.view", Resource: "drivers", Action: "view"}
	edit := &model.Permission{Name: "drivers.update", Resource: "drivers", Action: "update"}
	require.NoError(t, perms.Create(ctx, view))
	require.NoError(t, perms.Create(ctx, edit))

	n, err := perms.Grant(ctx, role.ID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = perms.Grant(ctx, role.ID, view.ID, edit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "an existing grant is not counted twice")

	granted, err := perms.CountGranted(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), granted)

	missing, err := perms.ListMissing(ctx, uuid.New())
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	ok, err := roles.RoleHasPermission(ctx, "dispatcher", "drivers.update")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.Model(&model.Role{}).Where("id = ?", role.ID).Update("is_active", false).Error)
	ok, err = roles.RoleHasPermission(ctx, "dispatcher", "drivers.update")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureByName(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	roles := NewRoleRepository(db)

	first, created, err := roles.EnsureByName(ctx, &model.Role{Name: model.SuperadminRoleName, IsSystem: true})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := roles.EnsureByName(ctx, &model.Role{Name: model.SuperadminRoleName, IsSystem: true})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestRunInTx_RollsBackNestedWork(t *testing.T) {
	db := testutil.TestDB(t)
	tx := NewTransactionManager(db)
	roles := NewRoleRepository(db)
	ctx := context.Background()

	err := tx.RunInTx(ctx, func(outer context.Context) error {
		require.NoError(t, roles.Create(outer, &model.Role{Name: "temp"}))
		return tx.RunInTx(outer, func(inner context.Context) error {
			assert.True(t, InTx(inner))
			return assert.AnError
		})
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = roles.FindByName(ctx, "temp")
	assert.Error(t, err)
}

func TestRecordRepository_KeysAndPartitions(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	records := NewRecordRepository(db)

	rows := []*model.DynamicRecord{
		{Category: model.CategoryFinance, Year: 2024, MonthName: "March", Fields: datatypes.JSONMap{"employee_id": "E1", "fuel_fee": "1.00"}},
		{Category: model.CategoryFinance, Year: 2024, MonthName: "March", Fields: datatypes.JSONMap{"employee_id": "E2"}},
		{Category: model.CategoryPayslip, Year: 2024, MonthName: "March", Fields: datatypes.JSONMap{"fuel_fee": "1.00"}},
	}
	require.NoError(t, records.CreateBatch(ctx, rows))

	n, err := records.RemoveKey(ctx, model.CategoryFinance, "fuel_fee")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := records.FindByID(ctx, model.CategoryFinance, rows[0].ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Fields, "fuel_fee")
	slip, err := records.FindByID(ctx, model.CategoryPayslip, rows[2].ID)
	require.NoError(t, err)
	assert.Contains(t, slip.Fields, "fuel_fee")

	existing, err := records.FindExistingIDs(ctx, model.CategoryFinance, []uint{rows[0].ID, rows[2].ID, 999})
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[0].ID}, existing)

	parts, err := records.ListPartitions(ctx, model.CategoryFinance)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, int64(2), parts[0].Count)

	deleted, err := records.DeletePartition(ctx, model.CategoryFinance, 2024, "march")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	count, err := records.CountPartition(ctx, model.CategoryPayslip, 2024, "March")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordRepository_SearchIsLiteral(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	records := NewRecordRepository(db)

	require.NoError(t, records.CreateBatch(ctx, []*model.DynamicRecord{
		{Category: model.CategoryFinance, Year: 2024, MonthName: "March", Fields: datatypes.JSONMap{"name": "Ann"}},
		{Category: model.CategoryFinance, Year: 2024, MonthName: "March", Fields: datatypes.JSONMap{"name": "100% Bob"}},
		{Category: model.CategoryFinance, Year: 2024, MonthName: "March", Fields: datatypes.JSONMap{"name": "cy_d"}},
	}))

	cases := []struct {
		search string
		want   int64
	}{
		{"%", 1},
		{"_", 1},
		{`\`, 0},
		{"ann", 1},
	}
	for _, tc := range cases {
		_, total, err := records.List(ctx,
			RecordFilter{Category: model.CategoryFinance, Search: tc.search},
			RecordSort{Column: "id"}, 0, 20)
		require.NoError(t, err)
		assert.Equal(t, tc.want, total, "search %q", tc.search)
	}
}

func TestFieldRepository_DisplayOrderTiesKeepInsertionOrder(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	fields := NewFieldRepository(db)

	next, err := fields.NextDisplayOrder(ctx, model.CategoryFinance)
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	// two writers that read the same next order
	for _, key := range []string{"trips", "fuel_fee"} {
		ok, err := fields.CreateIfAbsent(ctx, &model.FieldDescriptor{
			Category: model.CategoryFinance, Key: key, Label: key, Type: model.FieldText, DisplayOrder: next,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	list, err := fields.List(ctx, model.CategoryFinance)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "trips", list[0].Key)
	assert.Equal(t, "fuel_fee", list[1].Key)

	next, err = fields.NextDisplayOrder(ctx, model.CategoryFinance)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}
