package service

import (
	"strconv"
	"strings"
	"time"

	"fleetops/pkg/apperror"
)

// normalizeMonth accepts "March", "mar", "3" or "03" and returns the English month name
func normalizeMonth(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperror.Validation("month is required")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return "", apperror.Validation("month %d out of range", n)
		}
		return time.Month(n).String(), nil
	}
	lower := strings.ToLower(s)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if lower == name || (len(lower) >= 3 && strings.HasPrefix(name, lower)) {
			return m.String(), nil
		}
	}
	return "", apperror.Validation("unknown month '%s'", raw)
}

func validateYear(year int) error {
	if year < 1900 || year > 3000 {
		return apperror.Validation("year %d out of range", year)
	}
	return nil
}

// monthIndex orders month names; unknown names sort last
func monthIndex(name string) int {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), name) {
			return int(m)
		}
	}
	return 13
}
