package models

import "time"

// DateTolerance is how far apart two meeting dates may be and still be
// considered the same. Persisted dates are truncated to the second.
const DateTolerance = time.Second

// RoundToSecond rounds a time down to the nearest second
func RoundToSecond(t time.Time) time.Time {
	return t.Truncate(time.Second)
}

// AlmostEqual reports whether a and b are within DateTolerance of each other
func AlmostEqual(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= DateTolerance
}

// SameDay reports whether b falls on the same calendar day as a, in a's location
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// IsInFuture reports whether date is at or after now
func IsInFuture(date, now time.Time) bool {
	return !date.Before(now)
}

// IsInPast reports whether date is before the end of now's calendar day,
// so anything happening today counts as past.
func IsInPast(date, now time.Time) bool {
	y, m, d := now.Date()
	endOfToday := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return date.Before(endOfToday)
}
