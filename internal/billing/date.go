// Package billing holds the recurring-payment date engine and the selection
// of subscriptions due for a reminder. Everything here is pure: no storage,
// no clock other than the values passed in.
//
// A calendar day is represented as a time.Time at 00:00 UTC so that dates
// compare with == and Before regardless of the user's timezone.
package billing

import "time"

// Date builds a calendar day value. The caller must pass a valid day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock part of t, keeping the calendar day t has in its
// own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// DaysIn returns the length of month in year.
func DaysIn(year int, month time.Month) int {
	// day 0 of the following month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// AddDays shifts a calendar day by n days.
func AddDays(d time.Time, n int) time.Time {
	return DateOf(d).AddDate(0, 0, n)
}

// clampedDate returns anchorDay of the given month, clamped to the month
// length. month may be 13, which rolls into January of the next year.
func clampedDate(year int, month time.Month, anchorDay int) time.Time {
	if month > time.December {
		year++
		month -= 12
	}
	day := anchorDay
	if n := DaysIn(year, month); day > n {
		day = n
	}
	return Date(year, month, day)
}
