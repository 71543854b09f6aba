package stats

import (
	"math"

	"FinSim/internal/domain/models"
)

// annualization factor for per-trade Sharpe and CAGR
const tradingDaysPerYear = 252.0

// Calculator implements service.KPICalculator.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (Calculator) Compute(trades []models.TradeRecord, initialEquity float64, tradingDays int) models.KPIResult {
	return ComputeKPIs(trades, initialEquity, tradingDays)
}

// ComputeKPIs aggregates trades into a KPIResult. Degenerate ratios are
// defined rather than NaN: empty input yields zeros and final equity equal to
// initialEquity.
func ComputeKPIs(trades []models.TradeRecord, initialEquity float64, tradingDays int) models.KPIResult {
	if len(trades) == 0 {
		return models.KPIResult{FinalEquity: initialEquity}
	}

	var (
		wins, losses           int
		sumWinR, sumLossR      float64
		grossProfit, grossLoss float64
		totalR                 float64
	)
	for _, t := range trades {
		totalR += t.PnLR
		switch {
		case t.IsWin():
			wins++
			sumWinR += t.PnLR
			grossProfit += t.PnLUSD
		case t.IsLoss():
			losses++
			sumLossR += math.Abs(t.PnLR)
			grossLoss += math.Abs(t.PnLUSD)
		}
	}

	total := len(trades)
	winRate := float64(wins) / float64(total)

	avgWinR, avgLossR := 0.0, 0.0
	if wins > 0 {
		avgWinR = sumWinR / float64(wins)
	}
	if losses > 0 {
		avgLossR = sumLossR / float64(losses)
	}
	expectancy := winRate*avgWinR - (1-winRate)*avgLossR

	var pf float64
	switch {
	case grossLoss > 0:
		pf = grossProfit / grossLoss
	case wins > 0:
		pf = math.Inf(1)
	}

	equity := initialEquity
	peak := initialEquity
	maxDD := 0.0
	returns := make([]float64, 0, total)
	for _, t := range trades {
		prev := equity
		equity += t.PnLUSD
		r := 0.0
		if prev > 0 {
			r = (equity - prev) / prev
		}
		returns = append(returns, r)
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}

	return models.KPIResult{
		TotalTrades:  total,
		Wins:         wins,
		Losses:       losses,
		WinRate:      winRate,
		Expectancy:   expectancy,
		ProfitFactor: models.Ratio(pf),
		MaxDrawdown:  maxDD,
		SharpeRatio:  Sharpe(returns),
		AvgRR:        avgWinR,
		TotalR:       totalR,
		FinalEquity:  equity,
		CAGR:         CAGR(initialEquity, equity, tradingDays),
	}
}

// Sharpe is mean/sample-stdev of per-trade returns annualized by sqrt(252).
// It is 0 for fewer than two returns or zero variance.
func Sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	ss := 0.0
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// CAGR annualizes final/initial over tradingDays sessions.
func CAGR(initial, final float64, tradingDays int) float64 {
	if initial <= 0 || tradingDays <= 0 {
		return 0
	}
	ratio := final / initial
	if ratio <= 0 {
		return -1
	}
	return math.Pow(ratio, tradingDaysPerYear/float64(tradingDays)) - 1
}
