package clip

import (
	"fmt"
	"strings"
	"time"
)

// Timestamps cross the boundary in two shapes: ISO-8601 strings with a UTC
// offset (two dialects, with and without fractional seconds and the "T"
// separator) and epoch-millisecond integers. Everything is normalized to
// time.Time before any arithmetic.

const recorderTimeLayout = "2006-01-02 15:04:05.999999Z07:00"

// ParseRecorderTime parses the recorder webhook's date field, e.g.
// "2025-04-02 12:00:24.255628+08:00".
func ParseRecorderTime(s string) (time.Time, error) {
	t, err := time.Parse(recorderTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse recorder time %q: %w", s, err)
	}
	return t, nil
}

// ParseHeaderTime parses header document timestamps, e.g.
// "2025-04-02T12:00:24+08:00".
func ParseHeaderTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse header time %q: %w", s, err)
	}
	return t, nil
}

// FromMillis converts an epoch-millisecond integer to time.Time.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

// FromSeconds converts an epoch-second integer to time.Time.
func FromSeconds(sec int64) time.Time { return time.Unix(sec, 0) }

// ToMillis converts a time.Time to the epoch-millisecond representation the
// read API exchanges.
func ToMillis(t time.Time) int64 { return t.UnixMilli() }
