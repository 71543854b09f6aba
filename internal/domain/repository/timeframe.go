package repository

import "time"

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
// Provider-style spellings ("1min", "5minute") are accepted.
func NormalizeTimeframe(s string) Timeframe {
	switch s {
	case "1", "1min", "1minute", "m1", "M1":
		return TF1m
	case "5", "5min", "5minute", "m5", "M5":
		return TF5m
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bucket width.
func (tf Timeframe) Duration() time.Duration {
	if tf == TF5m {
		return 5 * time.Minute
	}
	return time.Minute
}

// Minutes returns the bucket width in minutes.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}
