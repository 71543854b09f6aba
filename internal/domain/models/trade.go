package models

import "time"

// Outcome is how a simulated trade resolved.
type Outcome string

const (
	OutcomeTarget  Outcome = "win_tp"
	OutcomeStop    Outcome = "loss_sl"
	OutcomeExpired Outcome = "expired"
)

// TradeRecord is the resolved result of one accepted signal. ExitTime is zero
// for expired trades.
type TradeRecord struct {
	Signal    TradeSignal `json:"signal"`
	Outcome   Outcome     `json:"outcome"`
	ExitPrice float64     `json:"exit_price"`
	ExitTime  time.Time   `json:"exit_timestamp"`
	PnLR      float64     `json:"pnl_r"`
	PnLUSD    float64     `json:"pnl_usd"`
	Slippage  float64     `json:"slippage_pips"`
}

func (t TradeRecord) IsWin() bool  { return t.Outcome == OutcomeTarget }
func (t TradeRecord) IsLoss() bool { return t.Outcome == OutcomeStop }

// PnLSeries extracts the currency P&L of each trade in order.
func PnLSeries(trades []TradeRecord) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnLUSD
	}
	return out
}
