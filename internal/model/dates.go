package model

import (
	"strings"
	"time"
)

// DateTimeLayout is the wire format for acceptance and approval timestamps.
const DateTimeLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{
	DateTimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseDate parses a server-supplied date in any of the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidDate reports whether s parses to a timestamp.
func ValidDate(s string) bool {
	_, ok := ParseDate(s)
	return ok
}

// FormatDateTime formats t in local time using DateTimeLayout.
func FormatDateTime(t time.Time) string {
	return t.Local().Format(DateTimeLayout)
}
