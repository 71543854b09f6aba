package indicators

import (
	"github.com/markcheno/go-talib"

	"FinSim/internal/domain/models"
)

const (
	// DefaultATRPeriod is the Wilder ATR length used by the session engine.
	DefaultATRPeriod = 14
	// DefaultVolumePeriod is the trailing volume average length.
	DefaultVolumePeriod = 20
)

// ATR returns the latest Wilder average true range over bars.
// It returns 0 when there are fewer than period+1 bars.
func ATR(bars []models.Bar, period int) float64 {
	if period < 1 || len(bars) < period+1 {
		return 0
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	out := talib.Atr(highs, lows, closes, period)
	return out[len(out)-1]
}

// AverageVolume returns the mean volume of the last period bars, the mean of
// all bars when fewer are available, and 1 for an empty slice so that volume
// thresholds stay finite.
func AverageVolume(bars []models.Bar, period int) float64 {
	if len(bars) == 0 {
		return 1.0
	}
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	if period < 1 || len(vols) < period {
		sum := 0.0
		for _, v := range vols {
			sum += v
		}
		return sum / float64(len(vols))
	}
	sma := talib.Sma(vols, period)
	return sma[len(sma)-1]
}

// BodyRatio is |close-open| / (high-low), 0 for a zero-range bar.
func BodyRatio(b models.Bar) float64 {
	r := b.Range()
	if r == 0 {
		return 0
	}
	return b.Body() / r
}

// WickRatio is the share of the bar's range not covered by its body.
func WickRatio(b models.Bar) float64 {
	r := b.Range()
	if r == 0 {
		return 0
	}
	return (r - b.Body()) / r
}

// SwingHigh returns the highest high of the last lookback bars.
func SwingHigh(bars []models.Bar, lookback int) float64 {
	recent := tail(bars, lookback)
	if len(recent) == 0 {
		return 0
	}
	hi := recent[0].High
	for _, b := range recent[1:] {
		if b.High > hi {
			hi = b.High
		}
	}
	return hi
}

// SwingLow returns the lowest low of the last lookback bars.
func SwingLow(bars []models.Bar, lookback int) float64 {
	recent := tail(bars, lookback)
	if len(recent) == 0 {
		return 0
	}
	lo := recent[0].Low
	for _, b := range recent[1:] {
		if b.Low < lo {
			lo = b.Low
		}
	}
	return lo
}

// Tail returns at most the last n bars.
func Tail(bars []models.Bar, n int) []models.Bar { return tail(bars, n) }

func tail(bars []models.Bar, n int) []models.Bar {
	if n <= 0 {
		return nil
	}
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}
