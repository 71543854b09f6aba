package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSim/internal/domain/models"
)

// interleaved returns 50 wins of +300 (3R) and 50 losses of -100 (-1R).
func interleaved() []models.TradeRecord {
	out := make([]models.TradeRecord, 0, 100)
	for i := 0; i < 50; i++ {
		out = append(out,
			models.TradeRecord{Outcome: models.OutcomeTarget, PnLR: 3, PnLUSD: 300},
			models.TradeRecord{Outcome: models.OutcomeStop, PnLR: -1, PnLUSD: -100},
		)
	}
	return out
}

func TestComputeKPIs_Empty(t *testing.T) {
	k := ComputeKPIs(nil, 10000, 0)
	assert.Equal(t, models.KPIResult{FinalEquity: 10000}, k)
	assert.Equal(t, 0.0, float64(k.ProfitFactor))
	assert.Equal(t, 0.0, k.SharpeRatio)
}

func TestComputeKPIs_Interleaved(t *testing.T) {
	k := ComputeKPIs(interleaved(), 10000, 100)

	assert.Equal(t, 100, k.TotalTrades)
	assert.Equal(t, 50, k.Wins)
	assert.Equal(t, 50, k.Losses)
	assert.InDelta(t, 0.5, k.WinRate, 1e-12)
	assert.InDelta(t, 1.0, k.Expectancy, 1e-12)
	assert.InDelta(t, 3.0, float64(k.ProfitFactor), 1e-12)
	assert.InDelta(t, 20000.0, k.FinalEquity, 1e-9)
	assert.InDelta(t, 3.0, k.AvgRR, 1e-12)
	assert.InDelta(t, 100.0, k.TotalR, 1e-12)
	assert.Greater(t, k.Expectancy, 0.0)
	assert.Greater(t, k.SharpeRatio, 0.0)
	assert.InDelta(t, math.Pow(2, 252.0/100)-1, k.CAGR, 1e-9)

	// the first loss after the first win is the deepest relative dip
	assert.InDelta(t, 100.0/10300.0, k.MaxDrawdown, 1e-12)
}

func TestComputeKPIs_IsPure(t *testing.T) {
	trades := interleaved()
	assert.Equal(t, ComputeKPIs(trades, 10000, 100), ComputeKPIs(trades, 10000, 100))
}

func TestComputeKPIs_ProfitFactorEdges(t *testing.T) {
	wins := []models.TradeRecord{{Outcome: models.OutcomeTarget, PnLR: 3, PnLUSD: 30}}
	k := ComputeKPIs(wins, 1000, 1)
	assert.True(t, math.IsInf(float64(k.ProfitFactor), 1))
	assert.Equal(t, 0.0, k.SharpeRatio)

	expired := []models.TradeRecord{{Outcome: models.OutcomeExpired}}
	k = ComputeKPIs(expired, 1000, 1)
	assert.Equal(t, 0.0, float64(k.ProfitFactor))
	assert.Equal(t, 0.0, k.WinRate)
}

func TestComputeKPIs_WipedOutEquityKeepsReturnSlot(t *testing.T) {
	trades := []models.TradeRecord{
		{Outcome: models.OutcomeStop, PnLR: -1, PnLUSD: -100},
		{Outcome: models.OutcomeTarget, PnLR: 3, PnLUSD: 50},
	}
	k := ComputeKPIs(trades, 100, 2)

	// returns are -1 and 0: the trade taken from zero equity counts as flat
	assert.InDelta(t, Sharpe([]float64{-1, 0}), k.SharpeRatio, 1e-12)
	assert.InDelta(t, -0.5/math.Sqrt(0.5)*math.Sqrt(252), k.SharpeRatio, 1e-9)
	assert.InDelta(t, 50.0, k.FinalEquity, 1e-12)
}

func TestCAGR(t *testing.T) {
	assert.Equal(t, 0.0, CAGR(0, 100, 10))
	assert.Equal(t, 0.0, CAGR(100, 120, 0))
	assert.Equal(t, -1.0, CAGR(100, -5, 10))
	assert.InDelta(t, 0.1, CAGR(100, 121, 504), 1e-9)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{0.01}))
	assert.Equal(t, 0.0, Sharpe([]float64{0.5, 0.5, 0.5}))
	require.NotZero(t, Sharpe([]float64{0.01, -0.005, 0.02}))
}

func TestRoundedProfitFactor(t *testing.T) {
	k := models.KPIResult{ProfitFactor: models.Ratio(math.Inf(1)), WinRate: 0.123456}
	r := k.Rounded()
	assert.True(t, math.IsInf(float64(r.ProfitFactor), 1))
	assert.Equal(t, 0.1235, r.WinRate)
}
