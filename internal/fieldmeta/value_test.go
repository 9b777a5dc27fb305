package fieldmeta

import (
	"encoding/json"
	"testing"

	"fleetops/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseTypedValues(t *testing.T) {
	v := Parse(model.FieldCurrency, "£1,250.5")
	assert.Equal(t, model.FieldCurrency, v.Type())
	assert.Equal(t, "1250.50", v.JSON())

	v = Parse(model.FieldNumber, "42")
	assert.Equal(t, model.FieldNumber, v.Type())
	assert.Equal(t, json.Number("42"), v.JSON())

	v = Parse(model.FieldDate, "03/02/2025")
	assert.Equal(t, model.FieldDate, v.Type())
	assert.Equal(t, "2025-02-03", v.JSON())

	v = Parse(model.FieldBoolean, "Yes")
	assert.Equal(t, true, v.JSON())
}

func TestParseKeepsUnfitCellsAsText(t *testing.T) {
	v := Parse(model.FieldCurrency, "N/A")
	assert.Equal(t, model.FieldText, v.Type())
	assert.Equal(t, "N/A", v.JSON())

	assert.True(t, Parse(model.FieldNumber, "   ").IsEmpty())
	assert.True(t, Value{}.IsEmpty())
}

func TestFromJSONAndAsDecimal(t *testing.T) {
	assert.Equal(t, model.FieldNumber, FromJSON(float64(3)).Type())
	assert.Equal(t, model.FieldBoolean, FromJSON(true).Type())
	assert.True(t, FromJSON(nil).IsEmpty())

	d, ok := AsDecimal("12.75")
	assert.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("12.75")))

	d, ok = AsDecimal(float64(10))
	assert.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(10)))

	_, ok = AsDecimal("driver")
	assert.False(t, ok)
}
