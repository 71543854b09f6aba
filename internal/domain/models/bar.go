package models

import (
	"fmt"
	"strings"
	"time"
)

// BarTimeLayout is the wire format of bar timestamps: naive New York wall clock.
const BarTimeLayout = "2006-01-02T15:04:05"

// Bar is one OHLCV record. Timestamps carry New York wall-clock values with no
// zone attached (stored in time.UTC so comparisons stay zone-free).
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Body returns the absolute open/close distance.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range returns high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

func (b Bar) IsBullish() bool { return b.Close > b.Open }
func (b Bar) IsBearish() bool { return b.Close < b.Open }

// Valid reports whether the bar has a timestamp and a coherent price envelope.
func (b Bar) Valid() bool {
	if b.Timestamp.IsZero() {
		return false
	}
	if b.High < b.Low || b.Volume < 0 {
		return false
	}
	return b.Open >= b.Low && b.Open <= b.High && b.Close >= b.Low && b.Close <= b.High
}

// Session is one trading day's opening coarse bar and its fine bars.
type Session struct {
	Date time.Time `json:"date"`
	M5   []Bar     `json:"m5"`
	M1   []Bar     `json:"m1"`
}

// Missing reports whether either granularity is absent for the day.
func (s Session) Missing() bool { return len(s.M1) == 0 || len(s.M5) == 0 }

// Tick is a single trade print from the live feed.
type Tick struct {
	Symbol    string    `json:"s"`
	Price     float64   `json:"p"`
	Volume    float64   `json:"v"`
	Timestamp time.Time `json:"-"`
	Millis    int64     `json:"t"`
}

// ParseBarTime parses a naive bar timestamp. A trailing "Z" and fractional
// seconds are tolerated; a space separator is accepted in place of "T".
func ParseBarTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "Z")
	s = strings.Replace(s, " ", "T", 1)
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	if len(s) == len("2006-01-02T15:04") {
		s += ":00"
	}
	t, err := time.Parse(BarTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bar time %q: %w", raw, err)
	}
	return t, nil
}

// FormatBarTime renders t in BarTimeLayout, or "" for the zero time.
func FormatBarTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(BarTimeLayout)
}

// RawBar is a bar as received from files or message payloads, timestamp unparsed.
type RawBar struct {
	Symbol    string  `json:"symbol,omitempty"`
	Interval  string  `json:"interval,omitempty"`
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Source    string  `json:"source,omitempty"`
}

// ToBar parses the timestamp and returns the typed bar.
func (r RawBar) ToBar() (Bar, error) {
	ts, err := ParseBarTime(r.Timestamp)
	if err != nil {
		return Bar{}, err
	}
	return Bar{Timestamp: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}, nil
}

// ParseRawBars converts raw bars, dropping (and counting) unparseable timestamps.
func ParseRawBars(raw []RawBar) ([]Bar, int) {
	out := make([]Bar, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		b, err := r.ToBar()
		if err != nil {
			skipped++
			continue
		}
		out = append(out, b)
	}
	return out, skipped
}
