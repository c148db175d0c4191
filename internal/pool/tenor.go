package pool

import (
	"strconv"
	"strings"
	"time"

	"forwardlock/internal/model"
)

const dateLayout = "2006-01-02"

// ParseTenor turns a tenor such as "3M", "90d" or a date "2026-12-31" into the
// latest acceptable maturity. Dates include the whole UTC day.
func ParseTenor(s string, now time.Time) (time.Time, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return time.Time{}, model.InvalidInputf("empty tenor")
	}

	if until, err := time.Parse(dateLayout, text); err == nil {
		until = until.Add(24*time.Hour - time.Second)
		if !until.After(now) {
			return time.Time{}, model.InvalidInputf("date %s is in the past", text)
		}
		return until, nil
	}

	unit := strings.ToUpper(text[len(text)-1:])
	n, err := strconv.Atoi(text[:len(text)-1])
	if err != nil || n <= 0 {
		return time.Time{}, model.InvalidInputf("invalid tenor %q", s)
	}
	switch unit {
	case "M":
		if n > 120 {
			return time.Time{}, model.InvalidInputf("tenor %q too long", s)
		}
		return now.AddDate(0, n, 0), nil
	case "D":
		if n > 3650 {
			return time.Time{}, model.InvalidInputf("tenor %q too long", s)
		}
		return now.AddDate(0, 0, n), nil
	case "W":
		if n > 520 {
			return time.Time{}, model.InvalidInputf("tenor %q too long", s)
		}
		return now.AddDate(0, 0, 7*n), nil
	case "Y":
		if n > 10 {
			return time.Time{}, model.InvalidInputf("tenor %q too long", s)
		}
		return now.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, model.InvalidInputf("invalid tenor unit in %q", s)
	}
}
