package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTime accepts RFC3339, RFC3339Nano or positive unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses s or returns def when s is empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseRange resolves a [from, to] query window. Empty bounds default to
// [now-span, now]; a non-empty bound that does not parse is an error.
func ParseRange(fromStr, toStr string, now time.Time, span time.Duration) (time.Time, time.Time, error) {
	to := now
	if toStr != "" {
		t, ok := ParseTime(toStr)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to %q", toStr)
		}
		to = t
	}
	from := to.Add(-span)
	if fromStr != "" {
		t, ok := ParseTime(fromStr)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from %q", fromStr)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to")
	}
	return from, to, nil
}
