package util

import (
	"time"
	_ "time/tzdata"
)

// DateLayout is the calendar-day layout used by request parameters and CLI flags.
const DateLayout = "2006-01-02"

// NewYork is the exchange zone all bar timestamps are expressed in.
var NewYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// WallClock converts an instant to a naive New York timestamp: the local
// date and clock of the exchange, carried in UTC with no offset applied.
func WallClock(t time.Time) time.Time {
	ny := t.In(NewYork)
	return time.Date(ny.Year(), ny.Month(), ny.Day(), ny.Hour(), ny.Minute(), ny.Second(), 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DayRange expands two calendar days into the half-open interval
// [start 00:00, end+1 00:00) so that every bar of the end day is included.
func DayRange(start, end time.Time) (time.Time, time.Time) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return from, to
}
