package models

import "time"

// DateLayout is the wire format for civil dates.
const DateLayout = "2006-01-02"

// KeyLayout is the compact date format used in storage keys.
const KeyLayout = "20060102"

// unixEpochOrdinal is the proleptic Gregorian ordinal of 1970-01-01,
// counting 0001-01-01 as day 1.
const unixEpochOrdinal = 719163

const secondsPerDay = 24 * 60 * 60

// CivilDate strips the clock from t and returns midnight UTC of the same
// year, month and day. Civil dates throughout the module use this form.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a civil date as YYYY-MM-DD. The zero time renders empty.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD into a civil date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateOrdinal returns the proleptic Gregorian day number of t's civil date,
// with 0001-01-01 as day 1.
func DateOrdinal(t time.Time) int64 {
	days := CivilDate(t).Unix() / secondsPerDay
	return days + unixEpochOrdinal
}

// DateFromOrdinal is the inverse of DateOrdinal.
func DateFromOrdinal(n int64) time.Time {
	return time.Unix((n-unixEpochOrdinal)*secondsPerDay, 0).UTC()
}
