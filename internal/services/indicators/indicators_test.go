package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FinSim/internal/domain/models"
)

func flatBars(n int, rng, vol float64) []models.Bar {
	start := time.Date(2024, 1, 2, 9, 35, 0, 0, time.UTC)
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      100,
			High:      100 + rng/2,
			Low:       100 - rng/2,
			Close:     100,
			Volume:    vol,
		}
	}
	return out
}

func TestATR(t *testing.T) {
	assert.Equal(t, 0.0, ATR(flatBars(14, 2, 100), 14))
	assert.InDelta(t, 2.0, ATR(flatBars(15, 2, 100), 14), 1e-9)
	assert.InDelta(t, 2.0, ATR(flatBars(40, 2, 100), 14), 1e-9)
	assert.Equal(t, 0.0, ATR(nil, 14))
}

func TestAverageVolume(t *testing.T) {
	assert.Equal(t, 1.0, AverageVolume(nil, 20))

	short := flatBars(3, 1, 10)
	short[2].Volume = 40
	assert.InDelta(t, 20.0, AverageVolume(short, 20), 1e-9)

	long := flatBars(25, 1, 10)
	for i := 5; i < 25; i++ {
		long[i].Volume = 30
	}
	assert.InDelta(t, 30.0, AverageVolume(long, 20), 1e-9)
}

func TestRatios(t *testing.T) {
	b := models.Bar{Open: 100, High: 102, Low: 99, Close: 101.5}
	assert.InDelta(t, 0.5, BodyRatio(b), 1e-9)
	assert.InDelta(t, 0.5, WickRatio(b), 1e-9)

	flat := models.Bar{Open: 100, High: 100, Low: 100, Close: 100}
	assert.Equal(t, 0.0, BodyRatio(flat))
	assert.Equal(t, 0.0, WickRatio(flat))
}

func TestSwings(t *testing.T) {
	bars := flatBars(6, 1, 10)
	bars[0].High = 150
	bars[0].Low = 50
	bars[4].High = 101
	bars[3].Low = 99

	assert.Equal(t, 101.0, SwingHigh(bars, 5))
	assert.Equal(t, 99.0, SwingLow(bars, 5))
	assert.Equal(t, 150.0, SwingHigh(bars, 10))
	assert.Equal(t, 0.0, SwingHigh(nil, 5))
	assert.Len(t, Tail(bars, 2), 2)
}
