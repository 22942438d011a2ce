// Package clock provides the time source used by every time-windowed service
// together with the calendar helpers for quest expiry windows.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the injectable time source. Production code uses Real(); tests use
// clockwork.NewFakeClockAt.
type Clock = clockwork.Clock

// Real returns the wall clock.
func Real() Clock {
	return clockwork.NewRealClock()
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// EndOfISOWeek returns Sunday 23:59:59 of the ISO week (Monday-Sunday) containing t.
func EndOfISOWeek(t time.Time) time.Time {
	// time.Weekday: Sunday=0 ... Saturday=6
	daysUntilSunday := (7 - int(t.Weekday())) % 7
	return EndOfDay(t.AddDate(0, 0, daysUntilSunday))
}

// SameDay reports whether a and b fall on the same calendar day of a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
