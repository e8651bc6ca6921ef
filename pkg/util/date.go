package util

import (
	"strconv"
	"time"
)

// DisplayLayout is the day-first layout used in user-facing emails.
const DisplayLayout = "02/01/2006 15:04"

// FormatDisplay formats t in DisplayLayout, in UTC.
func FormatDisplay(t time.Time) string {
	return t.UTC().Format(DisplayLayout)
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}
