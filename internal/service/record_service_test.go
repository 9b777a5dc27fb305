package service

import (
	"context"
	"fmt"
	"testing"

	"fleetops/internal/model"
	"fleetops/pkg/apperror"
	"fleetops/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func recordIDs(list *RecordListResponse) []uint {
	ids := make([]uint, 0, len(list.Records))
	for _, r := range list.Records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestUpdateRecord_MergesFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March",
		map[string]interface{}{"employee_id": "E1", "name": "Ann", "fuel_fee": "10.00"})

	got, err := e.finance.Update(ctx, ids[0], map[string]interface{}{"fuel_fee": "12.5"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Fields["name"])
	assert.Equal(t, "E1", got.Fields["employee_id"])
	assert.Equal(t, "12.50", got.Fields["fuel_fee"])

	known, err := e.catalog.Known(ctx, model.CategoryFinance)
	require.NoError(t, err)
	require.Contains(t, known, "fuel_fee")
	assert.Equal(t, model.FieldCurrency, known["fuel_fee"].Type)
	assert.Equal(t, int64(1), e.auditCount(t, model.ActionUpdateRecord))
}

func TestUpdateRecord_CoercesThroughDescriptor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.catalog.RegisterDiscovered(ctx, model.CategoryFinance, "trips", "", model.FieldNumber)
	require.NoError(t, err)
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March", map[string]interface{}{"employee_id": "E1"})

	got, err := e.finance.Update(ctx, ids[0], map[string]interface{}{"trips": " 14 "})
	require.NoError(t, err)
	assert.Equal(t, "14", fmt.Sprint(got.Fields["trips"]))
}

func TestUpdateRecord_IgnoresImportMetadata(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March", map[string]interface{}{"employee_id": "E1"})
	require.NoError(t, e.provenance.CreateBatch(ctx, []model.ImportProvenance{{
		RecordID:    ids[0],
		RowOrdinal:  7,
		ColumnOrder: datatypes.JSON(`["employee_id"]`),
	}}))

	got, err := e.finance.Update(ctx, ids[0], map[string]interface{}{
		model.ReservedRowKey:     99,
		model.ReservedColumnsKey: []string{"x"},
		"notes":                  "checked",
	})
	require.NoError(t, err)
	assert.NotContains(t, got.Fields, model.ReservedRowKey)
	assert.NotContains(t, got.Fields, model.ReservedColumnsKey)
	assert.Equal(t, "checked", got.Fields["notes"])
	require.NotNil(t, got.RowOrdinal)
	assert.Equal(t, 7, *got.RowOrdinal)
	assert.Equal(t, []string{"employee_id"}, got.ColumnOrder)
}

func TestUpdateRecord_Rejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March", map[string]interface{}{"employee_id": "E1"})

	_, err := e.finance.Update(ctx, ids[0], map[string]interface{}{"Bad Key": 1, "ok": 2})
	require.True(t, apperror.Is(err, apperror.KindValidationFailed))
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, map[string]interface{}{"invalid_keys": []string{"Bad Key"}}, appErr.Details)

	_, err = e.finance.Update(ctx, 999999, map[string]interface{}{"notes": "x"})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	// records of another category are invisible
	_, err = e.payslips.Update(ctx, ids[0], map[string]interface{}{"notes": "x"})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestBulkDelete_ReportsMisses(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ledger := e.seedRecords(t, model.CategoryFinance, 2024, "March",
		map[string]interface{}{"employee_id": "E1"},
		map[string]interface{}{"employee_id": "E2"})
	slips := e.seedRecords(t, model.CategoryPayslip, 2024, "March", map[string]interface{}{"employee_id": "E1"})

	res, err := e.finance.BulkDelete(ctx, []uint{ledger[0], 999999, ledger[0], slips[0]})
	require.NoError(t, err)
	assert.Equal(t, []uint{ledger[0]}, res.DeletedIDs)
	assert.ElementsMatch(t, []uint{999999, slips[0]}, res.NotFoundIDs)

	_, err = e.finance.Get(ctx, ledger[0])
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = e.payslips.Get(ctx, slips[0])
	assert.NoError(t, err)

	_, err = e.finance.BulkDelete(ctx, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))
}

func TestDeleteRecord(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March", map[string]interface{}{"employee_id": "E1"})

	require.NoError(t, e.finance.Delete(ctx, ids[0]))
	err := e.finance.Delete(ctx, ids[0])
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestListRecords_NumericSort(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.catalog.RegisterDiscovered(ctx, model.CategoryFinance, "trips", "", model.FieldNumber)
	require.NoError(t, err)
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March",
		map[string]interface{}{"employee_id": "E1", "trips": "9"},
		map[string]interface{}{"employee_id": "E2", "trips": "10"},
		map[string]interface{}{"employee_id": "E3", "trips": "2"})
	page := pagination.New(1, 20)

	list, err := e.finance.List(ctx, ListRecordsQuery{SortBy: "trips"}, page)
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[2], ids[0], ids[1]}, recordIDs(list))

	list, err = e.finance.List(ctx, ListRecordsQuery{SortBy: "trips", SortOrder: "DESC"}, page)
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1], ids[0], ids[2]}, recordIDs(list))
	assert.Equal(t, int64(3), list.Pagination.Total)
}

func TestListRecords_InferredSortAndFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ids := e.seedRecords(t, model.CategoryPayslip, 2024, "March",
		map[string]interface{}{"employee_id": "E1", "name": "Ann", "net_pay": 100.5},
		map[string]interface{}{"employee_id": "E2", "name": "Bob", "net_pay": 25.25})

	list, err := e.payslips.List(ctx, ListRecordsQuery{SortBy: "net_pay"}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.Equal(t, []uint{ids[1], ids[0]}, recordIDs(list))

	types := map[string]model.FieldType{}
	for _, f := range list.Fields {
		types[f.Key] = f.Type
	}
	assert.Equal(t, model.FieldCurrency, types["net_pay"])
	assert.Equal(t, model.FieldText, types["name"])
}

func TestListRecords_SortRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedRecords(t, model.CategoryFinance, 2024, "March", map[string]interface{}{"employee_id": "E1"})

	_, err := e.finance.List(ctx, ListRecordsQuery{SortBy: "fields; DROP TABLE roles"}, pagination.New(1, 20))
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))

	_, err = e.finance.List(ctx, ListRecordsQuery{SortOrder: "sideways"}, pagination.New(1, 20))
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))

	_, err = e.finance.List(ctx, ListRecordsQuery{Month: "Smarch"}, pagination.New(1, 20))
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))
}

func TestListRecords_Filters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	march := e.seedRecords(t, model.CategoryFinance, 2024, "March",
		map[string]interface{}{"employee_id": "E1", "name": "Ann Lee"},
		map[string]interface{}{"employee_id": "E2", "name": "Bob"})
	e.seedRecords(t, model.CategoryFinance, 2024, "April", map[string]interface{}{"employee_id": "E3", "name": "Joanna"})

	list, err := e.finance.List(ctx, ListRecordsQuery{Search: "ANN"}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.Len(t, list.Records, 2)

	list, err = e.finance.List(ctx, ListRecordsQuery{Search: "ann", Month: "3", Year: 2024}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.Equal(t, []uint{march[0]}, recordIDs(list))

	list, err = e.finance.List(ctx, ListRecordsQuery{}, pagination.New(2, 2))
	require.NoError(t, err)
	assert.Len(t, list.Records, 1)
	assert.Equal(t, int64(3), list.Pagination.Total)
	assert.Equal(t, int64(2), list.Pagination.TotalPages)
}

func TestDeleteField(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.catalog.RegisterDiscovered(ctx, model.CategoryFinance, "fuel_fee", "", model.FieldCurrency)
	require.NoError(t, err)
	ids := e.seedRecords(t, model.CategoryFinance, 2024, "March",
		map[string]interface{}{"employee_id": "E1", "fuel_fee": "10.00"},
		map[string]interface{}{"employee_id": "E2", "fuel_fee": "3.00"},
		map[string]interface{}{"employee_id": "E3"})

	_, err = e.finance.DeleteField(ctx, model.IdentifierKey)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
	_, err = e.finance.DeleteField(ctx, model.DisplayKey)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	res, err := e.finance.DeleteField(ctx, "fuel_fee")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RecordsUpdated)
	assert.True(t, res.DescriptorRemoved)

	got, err := e.finance.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.NotContains(t, got.Fields, "fuel_fee")
	assert.Equal(t, "E1", got.Fields["employee_id"])

	known, err := e.catalog.Known(ctx, model.CategoryFinance)
	require.NoError(t, err)
	assert.NotContains(t, known, "fuel_fee")

	_, err = e.finance.DeleteField(ctx, "fuel_fee")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestPartitions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedRecords(t, model.CategoryFinance, 2024, "March",
		map[string]interface{}{"employee_id": "E1", "fuel_fee": "10.00"},
		map[string]interface{}{"employee_id": "E2", "fuel_fee": "2.50"})
	e.seedRecords(t, model.CategoryFinance, 2024, "February", map[string]interface{}{"employee_id": "E1", "fuel_fee": "1.25"})
	e.seedRecords(t, model.CategoryPayslip, 2024, "March", map[string]interface{}{"employee_id": "E1"})

	parts, err := e.finance.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "March", parts[0].MonthName)
	assert.Equal(t, int64(2), parts[0].Count)
	assert.Equal(t, "12.50", parts[0].Totals["fuel_fee"])
	assert.Equal(t, "February", parts[1].MonthName)

	deleted, err := e.finance.DeletePartition(ctx, 2024, "mar")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	parts, err = e.finance.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "February", parts[0].MonthName)

	slips, err := e.payslips.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Len(t, slips, 1)

	_, err = e.finance.DeletePartition(ctx, 12, "March")
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))
}
