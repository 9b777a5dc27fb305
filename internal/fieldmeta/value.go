package fieldmeta

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fleetops/internal/model"

	"github.com/shopspring/decimal"
)

var numericLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// dateLayouts are tried in order when reading a date cell
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"02 Jan 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// Value is one typed field value. The zero Value is an empty text value.
type Value struct {
	kind model.FieldType
	text string
	num  decimal.Decimal
	date time.Time
	b    bool
}

func Text(s string) Value {
	return Value{kind: model.FieldText, text: s}
}

func Number(d decimal.Decimal) Value {
	return Value{kind: model.FieldNumber, num: d}
}

func Currency(d decimal.Decimal) Value {
	return Value{kind: model.FieldCurrency, num: d}
}

func Date(t time.Time) Value {
	return Value{kind: model.FieldDate, date: t}
}

func Boolean(b bool) Value {
	return Value{kind: model.FieldBoolean, b: b}
}

func (v Value) Type() model.FieldType {
	return v.kindOrText()
}

func (v Value) Decimal() decimal.Decimal {
	return v.num
}

func (v Value) kindOrText() model.FieldType {
	if v.kind == "" {
		return model.FieldText
	}
	return v.kind
}

// IsEmpty reports a blank text value
func (v Value) IsEmpty() bool {
	return v.kindOrText() == model.FieldText && strings.TrimSpace(v.text) == ""
}

// IsNumeric reports whether the value carries a number
func (v Value) IsNumeric() bool {
	return v.kindOrText().Numeric()
}

// Parse reads a raw cell as the given type. Cells that do not fit the type are kept
// as text so an odd value never drops data.
func Parse(t model.FieldType, raw string) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Text("")
	}

	switch t {
	case model.FieldNumber, model.FieldCurrency:
		d, ok := parseNumber(raw)
		if !ok {
			return Text(raw)
		}
		if t == model.FieldCurrency {
			return Currency(d)
		}
		return Number(d)
	case model.FieldDate:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return Date(ts)
			}
		}
		return Text(raw)
	case model.FieldBoolean:
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1":
			return Boolean(true)
		case "false", "no", "n", "0":
			return Boolean(false)
		}
		return Text(raw)
	}
	return Text(raw)
}

// parseNumber accepts plain literals plus thousands separators and a leading currency sign
func parseNumber(raw string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer(",", "", " ", "", "£", "", "$", "", "€", "").Replace(raw)
	if !numericLiteral.MatchString(cleaned) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FromJSON reads a value decoded from the document store
func FromJSON(raw interface{}) Value {
	switch x := raw.(type) {
	case nil:
		return Text("")
	case bool:
		return Boolean(x)
	case float64:
		return Number(decimal.NewFromFloat(x))
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return Number(d)
		}
		return Text(x.String())
	case int:
		return Number(decimal.NewFromInt(int64(x)))
	case int64:
		return Number(decimal.NewFromInt(x))
	case string:
		return Text(x)
	default:
		return Text(fmt.Sprint(x))
	}
}

// JSON converts the value to what gets stored in the document column
func (v Value) JSON() interface{} {
	switch v.kindOrText() {
	case model.FieldNumber:
		return json.Number(v.num.String())
	case model.FieldCurrency:
		// fixed two-place string so amounts keep their decimal point through the store
		return v.num.StringFixed(2)
	case model.FieldDate:
		return v.date.Format("2006-01-02")
	case model.FieldBoolean:
		return v.b
	default:
		return v.text
	}
}

func (v Value) String() string {
	switch v.kindOrText() {
	case model.FieldNumber:
		return v.num.String()
	case model.FieldCurrency:
		return v.num.StringFixed(2)
	case model.FieldDate:
		return v.date.Format("2006-01-02")
	case model.FieldBoolean:
		return strconv.FormatBool(v.b)
	default:
		return v.text
	}
}

// AsDecimal reads a stored JSON value as a number, accepting numeric strings
func AsDecimal(raw interface{}) (decimal.Decimal, bool) {
	v := FromJSON(raw)
	if v.IsNumeric() {
		return v.num, true
	}
	if v.kindOrText() == model.FieldText {
		return parseNumber(v.text)
	}
	return decimal.Zero, false
}
