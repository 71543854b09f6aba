package session

import (
	"sort"
	"time"

	"FinSim/internal/domain/models"
)

// Window is the intraday clock window of a session, in New York wall time.
type Window struct {
	Open      time.Duration // opening coarse bar, offset from midnight
	FineDelay time.Duration // first fine bar is Open+FineDelay
	End       time.Duration // last fine bar, inclusive
}

// DefaultWindow is the 09:30 opening bar with fine bars from 09:35 to 11:00.
var DefaultWindow = Window{
	Open:      9*time.Hour + 30*time.Minute,
	FineDelay: 5 * time.Minute,
	End:       11 * time.Hour,
}

// Result is the outcome of a partition pass.
type Result struct {
	Sessions []models.Session
	// Missing counts dates lacking either granularity inside the window.
	Missing int
	// Skipped counts bars dropped for an unusable timestamp.
	Skipped int
}

// Complete returns only the sessions that have both granularities.
func (r Result) Complete() []models.Session {
	out := make([]models.Session, 0, len(r.Sessions))
	for _, s := range r.Sessions {
		if !s.Missing() {
			out = append(out, s)
		}
	}
	return out
}

// Partition groups fine (m1) and coarse (m5) bars into one session per
// calendar date seen in either input, sorted by date. Dates whose window
// slice is empty on either side are kept, flagged missing and counted.
func Partition(m1, m5 []models.Bar, w Window) Result {
	byDate := make(map[time.Time]*models.Session)
	var res Result

	get := func(ts time.Time) *models.Session {
		d := dateOf(ts)
		s, ok := byDate[d]
		if !ok {
			s = &models.Session{Date: d}
			byDate[d] = s
		}
		return s
	}

	for _, b := range m5 {
		if b.Timestamp.IsZero() {
			res.Skipped++
			continue
		}
		s := get(b.Timestamp)
		if clock(b.Timestamp) == w.Open {
			s.M5 = append(s.M5, b)
		}
	}

	for _, b := range m1 {
		if b.Timestamp.IsZero() {
			res.Skipped++
			continue
		}
		s := get(b.Timestamp)
		c := clock(b.Timestamp)
		if c >= w.Open+w.FineDelay && c <= w.End {
			s.M1 = append(s.M1, b)
		}
	}

	res.Sessions = make([]models.Session, 0, len(byDate))
	for _, s := range byDate {
		sort.SliceStable(s.M1, func(i, j int) bool { return s.M1[i].Timestamp.Before(s.M1[j].Timestamp) })
		if s.Missing() {
			res.Missing++
		}
		res.Sessions = append(res.Sessions, *s)
	}
	sort.Slice(res.Sessions, func(i, j int) bool { return res.Sessions[i].Date.Before(res.Sessions[j].Date) })

	return res
}

// Latest returns the most recent complete session, if any.
func Latest(m1, m5 []models.Bar, w Window) (models.Session, bool) {
	res := Partition(m1, m5, w)
	for i := len(res.Sessions) - 1; i >= 0; i-- {
		if !res.Sessions[i].Missing() {
			return res.Sessions[i], true
		}
	}
	return models.Session{}, false
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// clock is the wall-clock offset from midnight, truncated to the second.
func clock(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}
