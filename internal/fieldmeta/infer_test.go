package fieldmeta

import (
	"testing"

	"fleetops/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuessTypeFromHeader(t *testing.T) {
	assert.Equal(t, model.FieldCurrency, GuessTypeFromHeader("Base Salary"))
	assert.Equal(t, model.FieldCurrency, GuessTypeFromHeader("Parking Fine"))
	assert.Equal(t, model.FieldCurrency, GuessTypeFromHeader("Admin Fee"))
	assert.Equal(t, model.FieldDate, GuessTypeFromHeader("Start Date"))
	assert.Equal(t, model.FieldNumber, GuessTypeFromHeader("Trip Count"))
	assert.Equal(t, model.FieldNumber, GuessTypeFromHeader("qty"))
	assert.Equal(t, model.FieldText, GuessTypeFromHeader("Name"))
}

func TestInferType(t *testing.T) {
	assert.Equal(t, model.FieldNumber, InferType([]interface{}{"9", "10", float64(3)}))
	assert.Equal(t, model.FieldCurrency, InferType([]interface{}{"9", "10.50"}))
	assert.Equal(t, model.FieldCurrency, InferType([]interface{}{float64(2.5)}))
	assert.Equal(t, model.FieldText, InferType([]interface{}{"9", "ten"}))
	assert.Equal(t, model.FieldText, InferType(nil))
}

func TestIsDeductionKey(t *testing.T) {
	assert.True(t, IsDeductionKey("parking_fine"))
	assert.True(t, IsDeductionKey("fuel_advance"))
	assert.False(t, IsDeductionKey("base_salary"))
}

func TestInferDescriptorsOrderAndSampling(t *testing.T) {
	records := []Sample{
		{
			Fields:      map[string]interface{}{"name": "Ann", "employee_id": "E1", "trips": "9", "bonus": "10.50", "zeta": "x"},
			ColumnOrder: []string{"employee_id", "name", "trips", "bonus"},
		},
		{
			Fields: map[string]interface{}{"name": "Bob", "employee_id": "E2", "trips": "10", "alpha": "", model.ReservedRowKey: 3},
		},
	}

	descs := InferDescriptors(model.CategoryPayslip, records)
	keys := make([]string, 0, len(descs))
	for _, d := range descs {
		keys = append(keys, d.Key)
	}
	require.Equal(t, []string{"employee_id", "name", "trips", "bonus", "alpha", "zeta"}, keys)

	byKey := map[string]model.FieldDescriptor{}
	for _, d := range descs {
		byKey[d.Key] = d
	}
	assert.Equal(t, model.FieldNumber, byKey["trips"].Type)
	assert.Equal(t, model.FieldCurrency, byKey["bonus"].Type)
	assert.Equal(t, model.FieldText, byKey["name"].Type)
	assert.Equal(t, model.FieldText, byKey["alpha"].Type) // only empty samples
	assert.True(t, byKey["name"].Highlight)
	assert.Equal(t, "Employee ID", byKey["employee_id"].Label)
	assert.Equal(t, 1, byKey["employee_id"].DisplayOrder)
}
