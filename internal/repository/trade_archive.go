package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"FinSim/internal/domain/models"
	pkgch "FinSim/pkg/clickhouse"
)

// TradeArchiveSchema creates the resolved-trade table.
var TradeArchiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS simulation_trades (
        sim_id      String,
        symbol      LowCardinality(String),
        signal_id   String,
        ts          DateTime('UTC'),
        direction   LowCardinality(String),
        entry       Float64,
        stop        Float64,
        tp          Float64,
        outcome     LowCardinality(String),
        exit_price  Float64,
        exit_ts     Nullable(DateTime('UTC')),
        pnl_r       Float64,
        pnl_usd     Float64,
        inserted_at DateTime DEFAULT now()
    ) ENGINE = MergeTree
    ORDER BY (symbol, sim_id, ts)`,
}

const tradeColumns = 13

// CHTradeArchive appends resolved trades to ClickHouse.
type CHTradeArchive struct {
	db *sql.DB
}

func NewCHTradeArchive(ch *pkgch.Client) *CHTradeArchive {
	return &CHTradeArchive{db: ch.DB()}
}

func (a *CHTradeArchive) Archive(ctx context.Context, simID, symbol string, trades []models.TradeRecord) error {
	for start := 0; start < len(trades); start += barChunkSize {
		end := start + barChunkSize
		if end > len(trades) {
			end = len(trades)
		}
		q, args := buildTradeInsert(simID, symbol, trades[start:end])
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("archive trades of %s: %w", simID, err)
		}
	}
	return nil
}

func buildTradeInsert(simID, symbol string, trades []models.TradeRecord) (string, []interface{}) {
	values := make([]string, 0, len(trades))
	args := make([]interface{}, 0, len(trades)*tradeColumns)
	for _, t := range trades {
		var exit interface{}
		if !t.ExitTime.IsZero() {
			exit = t.ExitTime
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			simID, symbol, t.Signal.ID, t.Signal.Timestamp, string(t.Signal.Side),
			t.Signal.Entry, t.Signal.Stop, t.Signal.Target,
			string(t.Outcome), t.ExitPrice, exit, t.PnLR, t.PnLUSD,
		)
	}
	q := "INSERT INTO simulation_trades (sim_id, symbol, signal_id, ts, direction, entry, stop, tp, outcome, exit_price, exit_ts, pnl_r, pnl_usd) VALUES " +
		strings.Join(values, ",")
	return q, args
}
