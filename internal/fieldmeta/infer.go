package fieldmeta

import (
	"sort"
	"strings"

	"fleetops/internal/model"
)

// SampleSize is the number of non-empty values inspected per key
const SampleSize = 5

// GuessTypeFromHeader classifies a column by its header text alone
func GuessTypeFromHeader(header string) model.FieldType {
	h := strings.ToLower(header)
	switch {
	case containsAny(h, "salary", "fee", "fine", "amount", "pay", "wage", "bonus", "deduction", "penalty", "advance", "allowance"):
		return model.FieldCurrency
	case strings.Contains(h, "date"):
		return model.FieldDate
	case containsAny(h, "count", "qty", "quantity", "trips", "hours", "days"):
		return model.FieldNumber
	case strings.HasPrefix(h, "is_") || strings.HasPrefix(h, "is "):
		return model.FieldBoolean
	}
	return model.FieldText
}

// IsDeductionKey reports whether a currency key reduces pay rather than adding to it
func IsDeductionKey(key string) bool {
	return containsAny(strings.ToLower(key), "fine", "deduction", "penalty", "advance")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// InferType classifies sampled JSON values: all numeric -> number, any fractional
// numeric -> currency, anything else -> text
func InferType(samples []interface{}) model.FieldType {
	if len(samples) == 0 {
		return model.FieldText
	}
	fractional := false
	for _, s := range samples {
		frac, numeric := numericSample(s)
		if !numeric {
			return model.FieldText
		}
		fractional = fractional || frac
	}
	if fractional {
		return model.FieldCurrency
	}
	return model.FieldNumber
}

// numericSample reports (fractional, isNumeric) for one sample
func numericSample(raw interface{}) (bool, bool) {
	v := FromJSON(raw)
	if v.IsNumeric() {
		return !v.num.Equal(v.num.Truncate(0)), true
	}
	if v.Type() != model.FieldText || !numericLiteral.MatchString(strings.TrimSpace(v.text)) {
		return false, false
	}
	return strings.Contains(v.text, "."), true
}

func isEmptySample(raw interface{}) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Sample is one record as seen by inference: its fields plus its recorded column order
type Sample struct {
	Fields      map[string]interface{}
	ColumnOrder []string
}

// InferDescriptors derives descriptors from the records of one page. Keys follow the
// first recorded import column order; keys never recorded come after, alphabetically.
func InferDescriptors(category string, records []Sample) []model.FieldDescriptor {
	samples := map[string][]interface{}{}
	seen := map[string]bool{}
	position := map[string]int{}

	for _, r := range records {
		for i, k := range r.ColumnOrder {
			if _, ok := position[k]; !ok {
				position[k] = i
			}
		}
		for k, v := range r.Fields {
			if model.IsReservedKey(k) {
				continue
			}
			seen[k] = true
			if isEmptySample(v) || len(samples[k]) >= SampleSize {
				continue
			}
			samples[k] = append(samples[k], v)
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	SortKeys(keys, position)

	out := make([]model.FieldDescriptor, 0, len(keys))
	for i, k := range keys {
		out = append(out, model.FieldDescriptor{
			Category:     category,
			Key:          k,
			Label:        DeriveLabel(k),
			Type:         InferType(samples[k]),
			Sortable:     true,
			Highlight:    model.IsProtectedKey(k),
			DisplayOrder: i + 1,
		})
	}
	return out
}

// SortKeys orders keys by recorded position, falling back to alphabetical
func SortKeys(keys []string, position map[string]int) {
	sort.SliceStable(keys, func(i, j int) bool {
		pi, iok := position[keys[i]]
		pj, jok := position[keys[j]]
		switch {
		case iok && jok:
			if pi != pj {
				return pi < pj
			}
			return keys[i] < keys[j]
		case iok:
			return true
		case jok:
			return false
		}
		return keys[i] < keys[j]
	})
}
