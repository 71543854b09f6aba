package backtest

import (
	"context"
	"fmt"
	"time"

	"FinSim/internal/domain/models"
	"FinSim/internal/domain/repository"
	"FinSim/internal/domain/service"
	"FinSim/internal/services/risk"
	"FinSim/internal/services/simulator"
	"FinSim/pkg/logger"
)

// Params are the per-run inputs of the day loop.
type Params struct {
	InitialEquity float64
	PipValue      float64
	Config        models.StrategyConfig
}

// Run is the outcome of one day loop.
type Run struct {
	Trades       []models.TradeRecord
	TradingDays  int
	MissingDays  int
	HaltedDays   int
	FinalEquity  float64
	BreakerTrips []string
}

// Runner drives sessions through engine, simulator and circuit breaker.
// A Runner may be reused; every Run call builds its own breaker and equity.
type Runner struct {
	engine   service.StrategyEngine
	simOpts  []simulator.Option
	logger   *logger.Logger
	metrics  repository.Metrics
	onSignal []func(models.TradeSignal)
	onTrade  []func(models.TradeRecord)
}

type Option func(*Runner)

func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSimulatorOptions configures the per-run simulator. The credited reward
// multiple always follows the run's rr_target.
func WithSimulatorOptions(opts ...simulator.Option) Option {
	return func(r *Runner) { r.simOpts = append(r.simOpts, opts...) }
}

// OnSignal registers a hook invoked for every accepted signal.
func OnSignal(fn func(models.TradeSignal)) Option {
	return func(r *Runner) { r.onSignal = append(r.onSignal, fn) }
}

// OnTrade registers a hook invoked for every resolved trade.
func OnTrade(fn func(models.TradeRecord)) Option {
	return func(r *Runner) { r.onTrade = append(r.onTrade, fn) }
}

func NewRunner(engine service.StrategyEngine, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		logger: logger.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run walks sessions in order. Days are strictly sequential: equity and
// breaker state carry from one day to the next. ctx is checked once per day.
func (r *Runner) Run(ctx context.Context, sessions []models.Session, p Params) (*Run, error) {
	out := &Run{FinalEquity: p.InitialEquity}
	equity := p.InitialEquity

	breaker := risk.NewCircuitBreaker(risk.LimitsFromConfig(p.Config), r.logger)
	breaker.OnTrip(func(reason string) error {
		out.BreakerTrips = append(out.BreakerTrips, reason)
		if r.metrics != nil {
			r.metrics.RecordBreakerTrip(reason)
		}
		return nil
	})

	simOpts := append([]simulator.Option{}, r.simOpts...)
	sim := simulator.New(append(simOpts, simulator.WithRewardMultiple(p.Config.RRTarget))...)

	start := time.Now()
	var lastMonth time.Time

	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest aborted after %d days: %w", out.TradingDays, err)
		}

		if sess.Missing() {
			out.MissingDays++
			continue
		}
		out.TradingDays++

		month := time.Date(sess.Date.Year(), sess.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if !lastMonth.IsZero() && !month.Equal(lastMonth) {
			breaker.NewMonth()
		}
		lastMonth = month
		breaker.NewDay()

		// NewDay clears every trip today; this only counts days once a trip can outlive the reset.
		if breaker.Tripped() {
			out.HaltedDays++
			continue
		}

		sig := r.engine.Evaluate(sess.M5, sess.M1, equity, p.Config)
		if sig == nil {
			continue
		}
		r.emitSignal(*sig)

		idx := ConfirmIndex(sess.M1, sig.Timestamp)
		rec := sim.Simulate(*sig, sess.M1[idx+1:], p.PipValue)
		out.Trades = append(out.Trades, rec)
		equity += rec.PnLUSD

		switch rec.Outcome {
		case models.OutcomeStop:
			breaker.RecordLoss(p.Config.RiskPerTrade)
		case models.OutcomeTarget:
			breaker.RecordWin(p.Config.RiskPerTrade)
		}
		r.emitTrade(rec)
	}

	out.FinalEquity = equity
	r.logger.Info("backtest finished",
		logger.String("strategy", r.engine.Name()),
		logger.Int("sessions", len(sessions)),
		logger.Int("trading_days", out.TradingDays),
		logger.Int("missing_days", out.MissingDays),
		logger.Int("trades", len(out.Trades)),
		logger.Float64("final_equity", equity),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (r *Runner) emitSignal(sig models.TradeSignal) {
	r.logger.Debug("signal accepted",
		logger.String("signal_id", sig.ID),
		logger.String("side", string(sig.Side)),
		logger.Float64("entry", sig.Entry),
		logger.Float64("stop", sig.Stop),
		logger.Float64("tp", sig.Target),
	)
	if r.metrics != nil {
		r.metrics.RecordSignal(r.engine.Name(), sig.Side)
	}
	for _, fn := range r.onSignal {
		fn(sig)
	}
}

func (r *Runner) emitTrade(rec models.TradeRecord) {
	r.logger.Debug("trade closed",
		logger.String("signal_id", rec.Signal.ID),
		logger.String("outcome", string(rec.Outcome)),
		logger.Float64("pnl_usd", rec.PnLUSD),
	)
	if r.metrics != nil {
		r.metrics.RecordTrade(rec.Outcome)
	}
	for _, fn := range r.onTrade {
		fn(rec)
	}
}

// ConfirmIndex finds the first bar in the same minute as ts, or the last bar
// when none matches.
func ConfirmIndex(bars []models.Bar, ts time.Time) int {
	want := ts.Truncate(time.Minute)
	for i, b := range bars {
		if b.Timestamp.Truncate(time.Minute).Equal(want) {
			return i
		}
	}
	return len(bars) - 1
}
