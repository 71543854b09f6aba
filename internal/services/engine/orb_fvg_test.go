package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSim/internal/domain/models"
	"FinSim/internal/services/indicators"
)

var sessionDay = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return sessionDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func bar(ts time.Time, o, h, l, c, v float64) models.Bar {
	return models.Bar{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func openingBar() []models.Bar {
	return []models.Bar{bar(at(9, 30), 100.5, 101, 100, 100.4, 1000)}
}

// shortSetup returns fine bars where bar 2 breaks below the range leaving a
// gap [100.1, 100.2] and bar 5 is a bearish engulfing inside it.
func shortSetup() []models.Bar {
	bars := []models.Bar{
		bar(at(9, 35), 100.5, 100.8, 100.2, 100.4, 100),
		bar(at(9, 36), 100.4, 100.5, 99.9, 100.0, 100),
		bar(at(9, 37), 100.0, 100.1, 99.5, 99.6, 100),
		bar(at(9, 38), 99.6, 99.9, 99.5, 99.8, 100),
		bar(at(9, 39), 99.8, 100.15, 99.75, 100.1, 100),
		bar(at(9, 40), 100.12, 100.3, 99.7, 99.75, 150),
	}
	for i := 0; i < 14; i++ {
		bars = append(bars, bar(at(9, 41+i), 99.7, 99.8, 99.6, 99.7, 100))
	}
	return bars
}

// mirror reflects prices around 100 so a short setup becomes a long one.
func mirror(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, len(bars))
	for i, b := range bars {
		out[i] = models.Bar{
			Timestamp: b.Timestamp,
			Open:      200 - b.Open,
			High:      200 - b.Low,
			Low:       200 - b.High,
			Close:     200 - b.Close,
			Volume:    b.Volume,
		}
	}
	return out
}

func TestEvaluate_ShortSetup(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	m1 := shortSetup()

	sig := NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg)
	require.NotNil(t, sig)

	atr := indicators.ATR(m1, indicators.DefaultATRPeriod)
	require.Greater(t, atr, 0.0)

	assert.Equal(t, models.SideShort, sig.Side)
	assert.Equal(t, at(9, 40), sig.Timestamp)
	assert.InDelta(t, 100.2, sig.GapTop, 1e-9)
	assert.InDelta(t, 100.1, sig.GapBottom, 1e-9)
	assert.InDelta(t, 100.2, sig.Entry, 1e-9)
	assert.InDelta(t, 100.5+0.1*atr, sig.Stop, 1e-9)
	assert.InDelta(t, sig.Stop-sig.Entry, sig.Risk, 1e-9)
	assert.InDelta(t, sig.Entry-3*sig.Risk, sig.Target, 1e-9)
	assert.InDelta(t, 10000*0.005/sig.Risk, sig.PositionSize, 1e-9)
	assert.InDelta(t, atr, sig.ATR, 1e-12)
	assert.Equal(t, 101.0, sig.RangeHigh)
	assert.Equal(t, 100.0, sig.RangeLow)
	assert.Equal(t, models.ConfidenceStandard, sig.Confidence)
	assert.True(t, strings.HasPrefix(sig.ID, "20240305T094000_ORB_SHORT_"), sig.ID)
	assert.Len(t, sig.ID, len("20240305T094000_ORB_SHORT_")+4)
}

func TestEvaluate_LongSetupMirrorsShort(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	short := NewORBFVGEngine().Evaluate(openingBar(), shortSetup(), 10000, cfg)
	long := NewORBFVGEngine().Evaluate(mirror(openingBar()), mirror(shortSetup()), 10000, cfg)
	require.NotNil(t, short)
	require.NotNil(t, long)

	assert.Equal(t, models.SideLong, long.Side)
	assert.InDelta(t, 200-short.Entry, long.Entry, 1e-9)
	assert.InDelta(t, 200-short.Stop, long.Stop, 1e-9)
	assert.InDelta(t, 200-short.Target, long.Target, 1e-9)
	assert.InDelta(t, short.Risk, long.Risk, 1e-9)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	e := NewORBFVGEngine()
	a := e.Evaluate(openingBar(), shortSetup(), 10000, cfg)
	b := e.Evaluate(openingBar(), shortSetup(), 10000, cfg)
	require.NotNil(t, a)
	assert.Equal(t, *a, *b)
}

func TestEvaluate_EmptyInputs(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	e := NewORBFVGEngine()
	assert.Nil(t, e.Evaluate(nil, shortSetup(), 10000, cfg))
	assert.Nil(t, e.Evaluate(openingBar(), nil, 10000, cfg))
}

func TestEvaluate_RangeBelowMinimum(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	flat := []models.Bar{bar(at(9, 30), 100, 100, 100, 100, 1000)}
	assert.Nil(t, NewORBFVGEngine().Evaluate(flat, shortSetup(), 10000, cfg))

	cfg.MinRangePips = 2
	assert.Nil(t, NewORBFVGEngine().Evaluate(openingBar(), shortSetup(), 10000, cfg))
}

func TestEvaluate_NoBreakout(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	var m1 []models.Bar
	for i := 0; i < 30; i++ {
		m1 = append(m1, bar(at(9, 35+i), 100.4, 100.7, 100.3, 100.6, 100))
	}
	assert.Nil(t, NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg))
}

func TestEvaluate_BreakoutWithoutGapIsNotRetried(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	m1 := shortSetup()
	// first breakout has no imbalance: its high overlaps the low of two bars back
	noGap := []models.Bar{
		bar(at(9, 31), 100.5, 100.8, 100.2, 100.4, 100),
		bar(at(9, 32), 100.4, 100.5, 100.1, 100.2, 100),
		bar(at(9, 33), 100.3, 100.3, 99.6, 99.7, 100),
		bar(at(9, 34), 99.7, 100.4, 99.7, 100.4, 100),
	}
	m1 = append(noGap, m1...)
	assert.Nil(t, NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg))
}

func TestEvaluate_RetestCountdown(t *testing.T) {
	// gap forms on bar 2, the engulfing bar is the third bar after it
	cfg := models.DefaultStrategyConfig()

	cfg.WaitRetestMaxM1 = 3
	assert.NotNil(t, NewORBFVGEngine().Evaluate(openingBar(), shortSetup(), 10000, cfg))

	cfg.WaitRetestMaxM1 = 2
	assert.Nil(t, NewORBFVGEngine().Evaluate(openingBar(), shortSetup(), 10000, cfg))
}

func TestEvaluate_InvalidatedByNewHigh(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	m1 := shortSetup()
	m1[3] = bar(at(9, 38), 99.6, 101.2, 99.5, 99.8, 100)
	assert.Nil(t, NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg))
}

func TestEvaluate_CloseThroughGapDoesNotInvalidate(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	m1 := shortSetup()
	// bar 3 closes well below the gap bottom; the setup stays alive
	m1[3] = bar(at(9, 38), 99.6, 99.9, 99.3, 99.4, 100)
	m1[4] = bar(at(9, 39), 99.8, 100.15, 99.35, 100.1, 100)
	assert.NotNil(t, NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg))
}

func TestEvaluate_ZeroStopDistanceRejected(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	cfg.SwingLookback = 1
	// six bars only: ATR is zero so the stop buffer vanishes, and the
	// confirmation high sits exactly on the gap top
	m1 := shortSetup()[:6]
	m1[5] = bar(at(9, 40), 100.12, 100.2, 99.7, 99.75, 150)

	assert.Nil(t, NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg))

	cfg.SwingLookback = 5
	sig := NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg)
	require.NotNil(t, sig)
	assert.Greater(t, sig.PositionSize, 0.0)
}

func TestPositionSize(t *testing.T) {
	assert.Equal(t, 0.0, PositionSize(10000, 0.005, 0, 1))
	assert.Equal(t, 0.0, PositionSize(10000, 0.005, 0.5, 0))
	assert.InDelta(t, 100.0, PositionSize(10000, 0.005, 0.5, 1), 1e-9)
}

func TestComputeGap(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	prev2 := bar(at(9, 35), 100, 100.5, 99.8, 100.4, 100)

	up := bar(at(9, 37), 100.9, 101.5, 100.8, 101.4, 100)
	gap, ok := ComputeGap(prev2, up, models.DirectionUp, 0, cfg)
	require.True(t, ok)
	assert.InDelta(t, 100.5, gap.Bottom, 1e-9)
	assert.InDelta(t, 100.8, gap.Top, 1e-9)
	assert.InDelta(t, 100.65, gap.Midpoint, 1e-9)

	// too small against ATR
	_, ok = ComputeGap(prev2, up, models.DirectionUp, 10, cfg)
	assert.False(t, ok)

	// overlapping bars
	_, ok = ComputeGap(prev2, bar(at(9, 37), 100.4, 101, 100.4, 100.9, 100), models.DirectionUp, 0, cfg)
	assert.False(t, ok)
}

func TestIsEngulfing(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	prev := bar(at(9, 40), 99.8, 100.15, 99.75, 100.1, 100)

	bearish := bar(at(9, 41), 100.12, 100.3, 99.7, 99.75, 100)
	assert.True(t, IsEngulfing(bearish, prev, models.DirectionDown, 0.2, 100, cfg))
	assert.False(t, IsEngulfing(bearish, prev, models.DirectionUp, 0.2, 100, cfg))
	// volume below half the average
	assert.False(t, IsEngulfing(bearish, prev, models.DirectionDown, 0.2, 1000, cfg))
	// body below the ATR fraction
	assert.False(t, IsEngulfing(bearish, prev, models.DirectionDown, 10, 100, cfg))
}

func TestPremiumConfidence(t *testing.T) {
	cfg := models.DefaultStrategyConfig()
	m1 := shortSetup()
	// long upper wick on the engulfing bar
	m1[5] = bar(at(9, 40), 100.12, 100.9, 99.7, 99.8, 150)
	sig := NewORBFVGEngine().Evaluate(openingBar(), m1, 10000, cfg)
	require.NotNil(t, sig)
	assert.Equal(t, models.ConfidencePremium, sig.Confidence)
}
