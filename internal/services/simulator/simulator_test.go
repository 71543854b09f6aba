package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FinSim/internal/domain/models"
)

var t0 = time.Date(2024, 3, 5, 9, 45, 0, 0, time.UTC)

func shortSignal() models.TradeSignal {
	return models.TradeSignal{
		ID: "sig", Side: models.SideShort,
		Entry: 100, Stop: 101, Target: 97, Risk: 1,
	}
}

func longSignal() models.TradeSignal {
	return models.TradeSignal{
		ID: "sig", Side: models.SideLong,
		Entry: 100, Stop: 99, Target: 103, Risk: 1,
	}
}

func b(i int, h, l float64) models.Bar {
	return models.Bar{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: (h + l) / 2, High: h, Low: l, Close: (h + l) / 2}
}

func TestSimulate_ShortTarget(t *testing.T) {
	rec := Simulate(shortSignal(), []models.Bar{b(1, 100.5, 99), b(2, 99, 96.9)}, 10)
	assert.Equal(t, models.OutcomeTarget, rec.Outcome)
	assert.Equal(t, 97.0, rec.ExitPrice)
	assert.Equal(t, t0.Add(2*time.Minute), rec.ExitTime)
	assert.Equal(t, 3.0, rec.PnLR)
	assert.Equal(t, 30.0, rec.PnLUSD)
	assert.Equal(t, SlippagePips, rec.Slippage)
}

func TestSimulate_ShortStop(t *testing.T) {
	rec := Simulate(shortSignal(), []models.Bar{b(1, 101, 99.5)}, 10)
	assert.Equal(t, models.OutcomeStop, rec.Outcome)
	assert.Equal(t, 102.0, rec.ExitPrice)
	assert.Equal(t, -1.0, rec.PnLR)
	assert.Equal(t, -10.0, rec.PnLUSD)
}

func TestSimulate_LongTargetAndStop(t *testing.T) {
	win := Simulate(longSignal(), []models.Bar{b(1, 103, 99.5)}, 1)
	assert.Equal(t, models.OutcomeTarget, win.Outcome)
	assert.Equal(t, 3.0, win.PnLUSD)

	loss := Simulate(longSignal(), []models.Bar{b(1, 100.5, 99)}, 1)
	assert.Equal(t, models.OutcomeStop, loss.Outcome)
	assert.Equal(t, 98.0, loss.ExitPrice)
}

func TestSimulate_TieBreak(t *testing.T) {
	both := []models.Bar{b(1, 103.5, 98.5)}

	rec := New().Simulate(longSignal(), both, 1)
	assert.Equal(t, models.OutcomeTarget, rec.Outcome)

	rec = New(WithTieBreak(StopFirst)).Simulate(longSignal(), both, 1)
	assert.Equal(t, models.OutcomeStop, rec.Outcome)
	assert.Equal(t, "stop_first", StopFirst.String())
}

func TestSimulate_Expired(t *testing.T) {
	for _, bars := range [][]models.Bar{nil, {b(1, 100.5, 99.5)}} {
		rec := Simulate(shortSignal(), bars, 1)
		assert.Equal(t, models.OutcomeExpired, rec.Outcome)
		assert.Equal(t, 100.0, rec.ExitPrice)
		assert.True(t, rec.ExitTime.IsZero())
		assert.Equal(t, 0.0, rec.PnLR)
		assert.Equal(t, 0.0, rec.PnLUSD)
		assert.Equal(t, SlippagePips, rec.Slippage)
	}
}
