package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration string. Empty yields 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// MinutesField converts an optional fractional-minutes value to a duration.
// nil yields def; non-positive or non-finite values are an error.
func MinutesField(path string, v *float64, def time.Duration) (time.Duration, error) {
	return unitsField(path, v, time.Minute, "minutes", def)
}

// HoursField is MinutesField for fractional hours.
func HoursField(path string, v *float64, def time.Duration) (time.Duration, error) {
	return unitsField(path, v, time.Hour, "hours", def)
}

func unitsField(path string, v *float64, unit time.Duration, unitName string, def time.Duration) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	n := *v
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return def, fmt.Errorf("%s: must be a positive number of %s, got %v", path, unitName, n)
	}
	return time.Duration(n * float64(unit)), nil
}
