package service

import "FinSim/internal/domain/models"

// StrategyEngine evaluates one session and returns at most one signal.
// Implementations must be pure: no I/O and no state kept between calls.
type StrategyEngine interface {
	Name() string
	Evaluate(m5, m1 []models.Bar, equity float64, cfg models.StrategyConfig) *models.TradeSignal
}

// KPICalculator aggregates resolved trades.
type KPICalculator interface {
	Compute(trades []models.TradeRecord, initialEquity float64, tradingDays int) models.KPIResult
}
