package models

import (
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout is the offset-free wire format for event times.
const DateTimeLayout = "2006-01-02T15:04:05"

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Naive drops the location of t and keeps its wall clock.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseNaiveDateTime parses an offset-free datetime such as "2024-01-15T10:00:00".
// Values carrying "Z" or a numeric offset are rejected; the timezone travels separately.
func ParseNaiveDateTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &ValidationError{Field: field, Message: "is required"}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if _, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return time.Time{}, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q must not include a timezone offset; pass the timezone separately", value),
		}
	}
	return time.Time{}, &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not in YYYY-MM-DDTHH:MM:SS format", value),
	}
}

// ParseWireDateTime accepts either an offset-free value or an RFC 3339 one.
// Offset values are converted to the wall clock of timeZone, or kept as-is when
// the zone cannot be loaded.
func ParseWireDateTime(value, timeZone string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized datetime %q: %w", value, err)
	}
	if loc, err := time.LoadLocation(timeZone); err == nil {
		t = t.In(loc)
	}
	return Naive(t), nil
}
