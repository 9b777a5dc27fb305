package service

import (
	"context"
	"testing"

	"fleetops/internal/model"
	"fleetops/internal/spreadsheet"
	"fleetops/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePayslips(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.importer.Import(ctx, ImportRequest{
		Year:  2024,
		Month: "March",
		Sheet: &spreadsheet.Sheet{
			Headers: []string{"Employee ID", "Name", "Base Salary", "Fuel Fine", "Trips"},
			Rows: [][]string{
				{"E1", "Ann", "1,000", "50", "3"},
				{"E2", "Bob", "800", "", "2"},
			},
		},
	})
	require.NoError(t, err)

	res, err := e.generator.GeneratePayslips(ctx, GeneratePayslipsRequest{Year: 2024, Month: "03"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Generated)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.PayslipIDs, 2)

	ann, err := e.payslips.Get(ctx, res.PayslipIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "E1", ann.Fields[model.IdentifierKey])
	assert.Equal(t, "1000.00", ann.Fields["base_salary"])
	assert.Equal(t, "1000.00", ann.Fields[GrossPayKey])
	assert.Equal(t, "50.00", ann.Fields[DeductionsKey])
	assert.Equal(t, "950.00", ann.Fields[NetPayKey])
	assert.NotContains(t, ann.Fields, "trips")
	require.NotNil(t, ann.SourceID)
	assert.Equal(t, []string{"employee_id", "name", "base_salary", "fuel_fine", GrossPayKey, DeductionsKey, NetPayKey}, ann.ColumnOrder)

	bob, err := e.payslips.Get(ctx, res.PayslipIDs[1])
	require.NoError(t, err)
	assert.Equal(t, "0.00", bob.Fields[DeductionsKey])
	assert.Equal(t, "800.00", bob.Fields[NetPayKey])

	again, err := e.generator.GeneratePayslips(ctx, GeneratePayslipsRequest{Year: 2024, Month: "March"})
	require.NoError(t, err)
	assert.Zero(t, again.Generated)
	assert.Equal(t, 2, again.Skipped)
	assert.Contains(t, e.events.Events(), EventPayslipsGenerated)
}

func TestGeneratePayslips_NeedsLedger(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.generator.GeneratePayslips(context.Background(), GeneratePayslipsRequest{Year: 2024, Month: "May"})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = e.generator.GeneratePayslips(context.Background(), GeneratePayslipsRequest{Year: 2024, Month: "13"})
	assert.True(t, apperror.Is(err, apperror.KindValidationFailed))
}
