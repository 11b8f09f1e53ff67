// Package timeutil centralizes timestamp parsing and calendar math
// used across parsers, bucketing, and the blog window logic.
package timeutil

import (
	"fmt"
	"time"
)

// timestampLayouts lists the formats session and feed sources emit,
// tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// ParseTimestamp parses a timestamp string in any supported layout.
// Returns the zero time when the string is empty or unparseable.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Format renders a time as RFC3339Nano in UTC with millisecond
// precision, or "" for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// DateKey returns the ISO calendar date of t in loc ("2026-02-08").
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Midnight truncates t to the start of its calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseDate parses an ISO date ("2026-02-08") in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// ISOWeek formats the ISO week of t as "2026-W06".
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekBounds returns the Monday and Sunday of ISO week (year, week)
// in loc.
func WeekBounds(year, week int, loc *time.Location) (time.Time, time.Time) {
	// Jan 4 is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	wd := int(jan4.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := jan4.AddDate(0, 0, -(wd-1)+(week-1)*7)
	return monday, monday.AddDate(0, 0, 6)
}

// ParseISOWeek parses "2026-W06" into (year, week).
func ParseISOWeek(s string) (int, int, error) {
	var year, week int
	if _, err := fmt.Sscanf(s, "%d-W%d", &year, &week); err != nil {
		return 0, 0, fmt.Errorf("parsing ISO week %q: %w", s, err)
	}
	if week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("parsing ISO week %q: week out of range", s)
	}
	return year, week, nil
}

// DaysBetween returns each midnight from start to end inclusive.
func DaysBetween(start, end time.Time, loc *time.Location) []time.Time {
	var days []time.Time
	for d := Midnight(start, loc); !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
