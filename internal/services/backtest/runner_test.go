package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSim/internal/domain/models"
	"FinSim/internal/services/engine"
	"FinSim/internal/services/stats"
)

// scriptedEngine signals a 1-point-risk short on the first fine bar of every session.
type scriptedEngine struct{ calls int }

func (e *scriptedEngine) Name() string { return "SCRIPTED" }

func (e *scriptedEngine) Evaluate(_, m1 []models.Bar, equity float64, cfg models.StrategyConfig) *models.TradeSignal {
	e.calls++
	return &models.TradeSignal{
		ID:           "s",
		Timestamp:    m1[0].Timestamp.Add(20 * time.Second),
		Side:         models.SideShort,
		Entry:        100,
		Stop:         101,
		Target:       97,
		Risk:         1,
		PositionSize: equity * cfg.RiskPerTrade,
	}
}

func day(y int, m time.Month, d int, win bool) models.Session {
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	at := func(h, min int) time.Time {
		return date.Add(time.Duration(h)*time.Hour + time.Duration(min)*time.Minute)
	}
	next := models.Bar{Timestamp: at(9, 36), Open: 100.5, High: 101.5, Low: 100, Close: 101}
	if win {
		next = models.Bar{Timestamp: at(9, 36), Open: 99.5, High: 99.8, Low: 96.5, Close: 97}
	}
	return models.Session{
		Date: date,
		M5:   []models.Bar{{Timestamp: at(9, 30), Open: 100, High: 101, Low: 99, Close: 100}},
		M1: []models.Bar{
			{Timestamp: at(9, 35), Open: 100, High: 100.5, Low: 99.5, Close: 100},
			next,
		},
	}
}

func params() Params {
	return Params{InitialEquity: 10000, PipValue: 100, Config: models.DefaultStrategyConfig()}
}

func TestRun_EquityAndCounts(t *testing.T) {
	sessions := []models.Session{
		day(2024, 3, 4, true),
		{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		day(2024, 3, 6, false),
		day(2024, 3, 7, true),
	}
	eng := &scriptedEngine{}
	var signals, trades int
	r := NewRunner(eng,
		OnSignal(func(models.TradeSignal) { signals++ }),
		OnTrade(func(models.TradeRecord) { trades++ }),
	)

	run, err := r.Run(context.Background(), sessions, params())
	require.NoError(t, err)

	assert.Equal(t, 3, run.TradingDays)
	assert.Equal(t, 1, run.MissingDays)
	assert.Equal(t, 3, eng.calls)
	require.Len(t, run.Trades, 3)
	assert.Equal(t, models.OutcomeTarget, run.Trades[0].Outcome)
	assert.Equal(t, models.OutcomeStop, run.Trades[1].Outcome)
	assert.InDelta(t, 10000+300-100+300, run.FinalEquity, 1e-9)
	assert.Equal(t, 3, signals)
	assert.Equal(t, 3, trades)
	assert.Empty(t, run.BreakerTrips)
}

func TestRun_RewardFollowsRRTarget(t *testing.T) {
	p := params()
	p.Config.RRTarget = 2

	run, err := NewRunner(&scriptedEngine{}).Run(context.Background(), []models.Session{day(2024, 3, 4, true)}, p)
	require.NoError(t, err)

	require.Len(t, run.Trades, 1)
	assert.Equal(t, models.OutcomeTarget, run.Trades[0].Outcome)
	assert.Equal(t, 2.0, run.Trades[0].PnLR)
	assert.InDelta(t, 200, run.Trades[0].PnLUSD, 1e-9)
	assert.InDelta(t, 10200, run.FinalEquity, 1e-9)
}

func TestRun_BreakerFedConfiguredRisk(t *testing.T) {
	p := params()
	p.Config.MaxDailyLosses = 5
	p.Config.MaxDailyDrawdownPct = 0.5
	p.Config.MaxMonthlyDrawdownPct = 0.012

	sessions := []models.Session{
		day(2024, 3, 5, false),
		day(2024, 3, 6, false),
		day(2024, 3, 7, false),
		day(2024, 4, 1, false),
		day(2024, 4, 2, false),
	}
	run, err := NewRunner(&scriptedEngine{}).Run(context.Background(), sessions, p)
	require.NoError(t, err)

	// three losses of 0.5% cross 1.2% monthly; April starts from zero again
	require.Len(t, run.BreakerTrips, 1)
	assert.Contains(t, run.BreakerTrips[0], "Monthly drawdown limit")
	assert.Len(t, run.Trades, 5)
}

func TestRun_DailyLossTripPerDay(t *testing.T) {
	p := params()
	p.Config.MaxDailyLosses = 1
	sessions := []models.Session{day(2024, 3, 5, false), day(2024, 3, 6, true), day(2024, 3, 7, false)}

	run, err := NewRunner(&scriptedEngine{}).Run(context.Background(), sessions, p)
	require.NoError(t, err)
	assert.Len(t, run.BreakerTrips, 2)
	// every day trades again after the reset
	assert.Len(t, run.Trades, 3)
	assert.Zero(t, run.HaltedDays)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(&scriptedEngine{}).Run(ctx, []models.Session{day(2024, 3, 5, true)}, params())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ZeroRangeSession(t *testing.T) {
	s := day(2024, 3, 5, true)
	s.M5[0].High = 100
	s.M5[0].Low = 100

	run, err := NewRunner(engine.NewORBFVGEngine()).Run(context.Background(), []models.Session{s}, params())
	require.NoError(t, err)
	assert.Empty(t, run.Trades)
	assert.Equal(t, 1, run.TradingDays)

	k := stats.ComputeKPIs(run.Trades, 10000, run.TradingDays)
	assert.Equal(t, 0, k.TotalTrades)
	assert.Equal(t, 0.0, k.WinRate)
	assert.Equal(t, 0.0, float64(k.ProfitFactor))
	assert.Equal(t, 10000.0, k.FinalEquity)
}

func TestRun_RealEngineTargetHit(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return date.Add(9*time.Hour + time.Duration(min)*time.Minute) }
	m1 := []models.Bar{
		{Timestamp: at(35), Open: 100.5, High: 100.8, Low: 100.2, Close: 100.4, Volume: 100},
		{Timestamp: at(36), Open: 100.4, High: 100.5, Low: 99.9, Close: 100.0, Volume: 100},
		{Timestamp: at(37), Open: 100.0, High: 100.1, Low: 99.5, Close: 99.6, Volume: 100},
		{Timestamp: at(38), Open: 99.6, High: 99.9, Low: 99.5, Close: 99.8, Volume: 100},
		{Timestamp: at(39), Open: 99.8, High: 100.15, Low: 99.75, Close: 100.1, Volume: 100},
		{Timestamp: at(40), Open: 100.12, High: 100.3, Low: 99.7, Close: 99.75, Volume: 150},
	}
	for i := 0; i < 14; i++ {
		m1 = append(m1, models.Bar{Timestamp: at(41 + i), Open: 99.7, High: 99.8, Low: 99.6, Close: 99.7, Volume: 100})
	}
	m1 = append(m1, models.Bar{Timestamp: at(55), Open: 99.6, High: 99.7, Low: 98.5, Close: 98.6, Volume: 100})

	s := models.Session{
		Date: date,
		M5:   []models.Bar{{Timestamp: at(30), Open: 100.5, High: 101, Low: 100, Close: 100.4, Volume: 1000}},
		M1:   m1,
	}

	p := params()
	p.PipValue = 1
	run, err := NewRunner(engine.NewORBFVGEngine()).Run(context.Background(), []models.Session{s}, p)
	require.NoError(t, err)
	require.Len(t, run.Trades, 1)

	rec := run.Trades[0]
	assert.Equal(t, models.SideShort, rec.Signal.Side)
	assert.Equal(t, models.OutcomeTarget, rec.Outcome)
	assert.Equal(t, at(55), rec.ExitTime)
	assert.InDelta(t, rec.Signal.Risk*3, rec.PnLUSD, 1e-9)
	assert.InDelta(t, 10000+rec.PnLUSD, run.FinalEquity, 1e-9)
}

func TestConfirmIndex(t *testing.T) {
	base := time.Date(2024, 3, 5, 9, 35, 0, 0, time.UTC)
	bars := []models.Bar{{Timestamp: base}, {Timestamp: base.Add(time.Minute)}, {Timestamp: base.Add(2 * time.Minute)}}
	assert.Equal(t, 1, ConfirmIndex(bars, base.Add(time.Minute+30*time.Second)))
	assert.Equal(t, 2, ConfirmIndex(bars, base.Add(time.Hour)))
}
