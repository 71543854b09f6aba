package repository

import (
	"context"
	"time"

	"FinSim/internal/domain/models"
)

// BarRepository persists intraday bars per symbol and timeframe.
type BarRepository interface {
	Save(ctx context.Context, symbol string, tf Timeframe, bars []models.Bar, source string) (int, error)
	Get(ctx context.Context, symbol string, tf Timeframe, from, to time.Time, limit int) ([]models.Bar, error)
	HasData(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) (bool, error)
	Latest(ctx context.Context, symbol string, tf Timeframe, n int) ([]models.Bar, error)
}

// BarProvider fetches bars from an upstream market-data vendor.
type BarProvider interface {
	Name() string
	FetchBars(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]models.Bar, error)
}

// ResultStore keeps simulation results addressable by sim id.
type ResultStore interface {
	Save(ctx context.Context, res *models.SimulationResult) error
	Get(ctx context.Context, id string) (*models.SimulationResult, error)
	List(ctx context.Context) ([]models.SimulationListItem, error)
}

// TradeArchive appends resolved trades for offline analysis.
type TradeArchive interface {
	Archive(ctx context.Context, simID, symbol string, trades []models.TradeRecord) error
}

// ResultPublisher fans simulation output out to downstream consumers.
type ResultPublisher interface {
	PublishTrades(ctx context.Context, simID string, trades []models.TradeView) error
	PublishSummary(ctx context.Context, simID string, summary *models.Summary) error
	Close() error
}

// MarketStream is a live trade feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics is the recorder surface used by the simulation services.
type Metrics interface {
	RecordSimulation(strategy, status string)
	RecordSignal(strategy string, side models.Side)
	RecordTrade(outcome models.Outcome)
	RecordBreakerTrip(reason string)
	RecordBarsStored(tf Timeframe, source string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordFinalEquity(symbol string, equity float64)
}
