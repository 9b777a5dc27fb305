package fieldmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"Employee ID":       "employee_id",
		"  Base  Salary ":   "base_salary",
		"Fuel/Fine (£)":     "fuel_fine",
		"Trips -- Count":    "trips_count",
		"__already_clean__": "already_clean",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeKey(in), "header %q", in)
	}
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("base_salary"))
	assert.False(t, ValidKey("Base Salary"))
	assert.False(t, ValidKey("name'; drop table x"))
	assert.False(t, ValidKey(""))
}

func TestDeriveLabel(t *testing.T) {
	cases := map[string]string{
		"base_salary":   "Base Salary",
		"employee_id":   "Employee ID",
		"trip_id":       "Trip ID",
		"pos":           "POS",
		"pos_fee":       "POS Fee",
		"overTimeHours": "Over Time Hours",
		"NET_PAY":       "Net Pay",
		"fuel-card":     "Fuel Card",
	}
	for in, want := range cases {
		assert.Equal(t, want, DeriveLabel(in), "key %q", in)
	}
}
