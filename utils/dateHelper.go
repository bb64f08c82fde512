package utils

import "time"

// DateOnly drops the clock part of t as seen in loc and returns midnight UTC of that calendar day.
// All persisted dates go through here so that comparisons are by calendar day.
func DateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func AddDays(date time.Time, days int) time.Time {
	return date.AddDate(0, 0, days)
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	a = DateOnly(a, time.UTC)
	b = DateOnly(b, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", value, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// Today is the calendar date of now in loc.
func Today(now func() time.Time, loc *time.Location) time.Time {
	if now == nil {
		now = time.Now
	}
	return DateOnly(now(), loc)
}
