package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t.UTC(), nil
}

// WindowEnding returns [end-lookback, end) truncated to whole seconds.
func WindowEnding(end time.Time, lookback time.Duration) (time.Time, time.Time) {
	end = end.UTC().Truncate(time.Second)
	if lookback <= 0 {
		lookback = time.Hour
	}
	return end.Add(-lookback), end
}

// HoursToDuration converts a whole-hours lookback into a duration; non-positive returns zero.
func HoursToDuration(hours int) time.Duration {
	if hours <= 0 {
		return 0
	}
	return time.Duration(hours) * time.Hour
}

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// dbTimeLayout is fixed-width so stored timestamps sort lexically in SQL.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatDBTime renders t in UTC using the fixed-width storage layout.
func FormatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

// ParseDBTime parses a value written by FormatDBTime.
func ParseDBTime(value string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t, nil
}
