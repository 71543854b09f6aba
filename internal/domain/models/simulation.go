package models

import (
	"errors"
	"time"
)

var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrNoData             = errors.New("no bar data")
	ErrInvalidRange       = errors.New("start date must be before end date")
	ErrInvalidParams      = errors.New("invalid simulation parameters")
)

// SimulationParams fully describes one backtest run.
type SimulationParams struct {
	Symbol              string
	Strategy            string
	Start               time.Time
	End                 time.Time
	AccountSize         float64
	PipValue            float64
	BootstrapIterations int
	Config              StrategyConfig
}

type SimulationStatus string

const (
	StatusPending   SimulationStatus = "pending"
	StatusCompleted SimulationStatus = "completed"
	StatusFailed    SimulationStatus = "failed"
)

// Summary is the reported outcome of a run. Numeric KPIs are rounded.
type Summary struct {
	Symbol          string  `json:"symbol"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	AccountSize     float64 `json:"account_size"`
	Strategy        string  `json:"strategy"`
	TradingDays     int     `json:"trading_days"`
	MissingDataDays int     `json:"missing_data_days"`
	KPIResult
	Bootstrap *BootstrapResult `json:"bootstrap,omitempty"`
}

// TradeView is the flat representation of a TradeRecord.
type TradeView struct {
	SignalID      string  `json:"signal_id"`
	Timestamp     string  `json:"timestamp"`
	Direction     Side    `json:"direction"`
	Confidence    string  `json:"confidence"`
	Entry         float64 `json:"entry"`
	Stop          float64 `json:"stop"`
	TP            float64 `json:"tp"`
	PositionSize  float64 `json:"position_size"`
	Outcome       Outcome `json:"outcome"`
	ExitPrice     float64 `json:"exit_price"`
	ExitTimestamp string  `json:"exit_timestamp"`
	PnLR          float64 `json:"pnl_r"`
	PnLUSD        float64 `json:"pnl_usd"`
}

// NewTradeView flattens a record for storage or transport.
func NewTradeView(t TradeRecord) TradeView {
	return TradeView{
		SignalID:      t.Signal.ID,
		Timestamp:     FormatBarTime(t.Signal.Timestamp),
		Direction:     t.Signal.Side,
		Confidence:    string(t.Signal.Confidence),
		Entry:         Round(t.Signal.Entry, 5),
		Stop:          Round(t.Signal.Stop, 5),
		TP:            Round(t.Signal.Target, 5),
		PositionSize:  Round(t.Signal.PositionSize, 4),
		Outcome:       t.Outcome,
		ExitPrice:     Round(t.ExitPrice, 5),
		ExitTimestamp: FormatBarTime(t.ExitTime),
		PnLR:          t.PnLR,
		PnLUSD:        Round(t.PnLUSD, 2),
	}
}

// SimulationResult is what the result store keeps per sim id.
type SimulationResult struct {
	ID          string           `json:"sim_id"`
	Status      SimulationStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	Summary     *Summary         `json:"summary,omitempty"`
	Trades      []TradeView      `json:"trades,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// SimulationListItem is the compact form used when listing results.
type SimulationListItem struct {
	ID      string           `json:"sim_id"`
	Status  SimulationStatus `json:"status"`
	Summary *Summary         `json:"summary,omitempty"`
}

// LiveSignal is the answer to a live-signal probe.
type LiveSignal struct {
	Symbol   string       `json:"symbol"`
	Strategy string       `json:"strategy"`
	Signal   *TradeSignal `json:"signal"`
	Reason   string       `json:"reason"`
	Source   string       `json:"source"`
}
