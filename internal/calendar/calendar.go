// Package calendar holds the date arithmetic shared by streaks and billing cycles.
// A "day" is represented as midnight UTC of the local calendar date, so two days
// compare with == and subtract without DST surprises.
package calendar

import "time"

// Day returns the calendar date of t as seen in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date normalises an already-stored date (e.g. scanned from a DATE column).
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from a to b (b-a).
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OnDay returns the date in (year, month) with the given day-of-month,
// clamped to the month's last day (31 → 30 in April, 28/29 in February).
func OnDay(year int, month time.Month, day int) time.Time {
	if day < 1 {
		day = 1
	}
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NextMonth moves (year, month) one month forward.
func NextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

// Format renders a day as 02.01.2006.
func Format(t time.Time) string {
	return t.Format("02.01.2006")
}
