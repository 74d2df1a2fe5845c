package finance

import (
	"strings"
	"time"
)

// =============================================================================
// CLOCK - Shared, overridable "now"
// =============================================================================

// Clock is a reference cell holding the source of "now". A loan and every
// time-aware value it owns hold the same *Clock, so pinning it moves all of
// them at once.
type Clock struct {
	now    func() time.Time
	pinned *time.Time
}

// NewClock returns a clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// FixedClock returns a clock pinned to t.
func FixedClock(t time.Time) *Clock {
	c := NewClock()
	c.Pin(t)
	return c
}

// Now returns the pinned time if any, otherwise the source time, in UTC.
func (c *Clock) Now() time.Time {
	if c.pinned != nil {
		return *c.pinned
	}
	return c.now().UTC()
}

// Pin freezes the clock at t until Unpin.
func (c *Clock) Pin(t time.Time) {
	t = Normalize(t)
	c.pinned = &t
}

func (c *Clock) Unpin()         { c.pinned = nil }
func (c *Clock) IsPinned() bool { return c.pinned != nil }

// =============================================================================
// TIMESTAMPS
// =============================================================================

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Normalize converts t to UTC. Every public entry point of the ledger calls it
// so comparisons never depend on the caller's location.
func Normalize(t time.Time) time.Time {
	return t.UTC()
}

// DaysBetween returns the whole days elapsed from -> to, flooring partial
// days (a payment at noon on day 14 counts 14 days, not 15).
func DaysBetween(from, to time.Time) int {
	d := to.Sub(from)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// MonthlySequence returns n dates one month apart starting at first. Days
// past the end of a shorter month clamp to its last day (Jan 31, Feb 29,
// Mar 31), so the sequence never drifts.
func MonthlySequence(first time.Time, n int) []time.Time {
	first = Normalize(first)
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		y, m, _ := first.AddDate(0, i, 1-first.Day()).Date()
		last := time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
		day := first.Day()
		if day > last {
			day = last
		}
		h, mi, sec := first.Clock()
		dates = append(dates, time.Date(y, m, day, h, mi, sec, first.Nanosecond(), time.UTC))
	}
	return dates
}

// MaxTime returns the later of two timestamps.
func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate reads a date-like value: time.Time, *time.Time or a string in
// RFC 3339 or "2006-01-02[ 15:04[:05]]" form. Strings without a zone are UTC.
func ParseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, &DateError{Input: v}
		}
		return Normalize(t), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, &DateError{Input: v}
		}
		return Normalize(*t), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return Normalize(parsed), nil
			}
		}
	}
	return time.Time{}, &DateError{Input: v}
}
