// Package cutoff implements the daily threshold policy that freezes
// menu creation and order selection. All functions are pure: the
// current time is always an argument and never read internally.
package cutoff

import "time"

// dayOrdinal collapses a timestamp to a comparable calendar-day number
func dayOrdinal(t time.Time) int {
	y, m, d := t.Date()
	return y*512 + int(m)*32 + d
}

// SameDay reports whether two timestamps fall on the same calendar day
func SameDay(a, b time.Time) bool {
	return dayOrdinal(a) == dayOrdinal(b)
}

// Expired reports whether an order dated date can no longer be
// modified: the date is in the past, today's cutoff hour has been
// reached, or the order was already fulfilled. Once true for a given
// date and fulfilled value it stays true as now advances.
func Expired(date time.Time, cutoffHour int, now time.Time, fulfilled *time.Time) bool {
	if fulfilled != nil {
		return true
	}
	d, n := dayOrdinal(date), dayOrdinal(now)
	if d < n {
		return true
	}
	if d == n && now.Hour() >= cutoffHour {
		return true
	}
	return false
}

// CreatableDate reports whether a menu may be created or updated for
// the given date: past dates are rejected, and today is rejected once
// the cutoff hour has been reached. The boundary is inclusive on the
// cutoff hour, matching Expired.
func CreatableDate(date time.Time, cutoffHour int, now time.Time) bool {
	d, n := dayOrdinal(date), dayOrdinal(now)
	if d < n {
		return false
	}
	if d == n && now.Hour() >= cutoffHour {
		return false
	}
	return true
}

// PastDay reports whether date falls on a day strictly before now's day
func PastDay(date, now time.Time) bool {
	return dayOrdinal(date) < dayOrdinal(now)
}
