// Package timeutil holds the pure timestamp helpers shared by the reconciler
// and the presentation formatter.
package timeutil

import "time"

// SameCalendarDay reports whether a and b fall on the same calendar day in
// b's location.
func SameCalendarDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsYesterday reports whether t falls exactly one calendar day before now, in
// now's location.
func IsYesterday(t, now time.Time) bool {
	return SameCalendarDay(t, now.AddDate(0, 0, -1))
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Within reports whether a and b are at most tol apart, in either direction.
func Within(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}
