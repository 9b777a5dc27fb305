package fieldmeta

import (
	"strings"
	"unicode"
)

// SanitizeKey turns a spreadsheet header into a field key: lower-case, every run of
// non-alphanumeric characters collapsed into one underscore, no leading/trailing underscores.
func SanitizeKey(header string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(header)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ValidKey reports whether key has the sanitized shape
func ValidKey(key string) bool {
	return key != "" && SanitizeKey(key) == key
}

// labelOverrides maps well-known domain abbreviations to their canonical label
var labelOverrides = map[string]string{
	"pos":              "POS",
	"proof_of_service": "POS",
	"id":               "ID",
	"employee_id":      "Employee ID",
	"driver_id":        "Driver ID",
	"cod":              "COD",
	"ot":               "OT",
	"ot_hours":         "OT Hours",
	"vat":              "VAT",
	"ni":               "NI",
	"paye":             "PAYE",
}

// DeriveLabel produces a human-readable label for a field key
func DeriveLabel(key string) string {
	if l, ok := labelOverrides[strings.ToLower(key)]; ok {
		return l
	}

	s := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' {
			return ' '
		}
		return r
	}, key)

	// an all-caps key like "NET_PAY" must not be split letter by letter
	if s != strings.ToUpper(s) {
		s = splitCamel(s)
	}

	words := strings.Fields(s)
	for i, w := range words {
		if l, ok := labelOverrides[strings.ToLower(w)]; ok && !strings.Contains(l, " ") {
			words[i] = l
			continue
		}
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func splitCamel(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	if len(runes) == 0 {
		return w
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
