package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	domsvc "FinSim/internal/domain/service"
	"FinSim/internal/services/backtest"
	"FinSim/internal/services/engine"
	"FinSim/internal/services/session"
	"FinSim/internal/services/stats"
	"FinSim/pkg/logger"
	"FinSim/pkg/queue"
	"FinSim/pkg/util"

	"github.com/google/uuid"
)

// Live-signal reasons.
const (
	ReasonInsufficientData = "Insufficient intraday data for live signal."
	ReasonNoSetup          = "No valid setup found in current session."
	ReasonSignalFound      = "Signal found."
)

const (
	liveM1Bars = 390
	liveM5Bars = 78
)

// SimulationConfig carries the process-wide simulation settings.
type SimulationConfig struct {
	DefaultStrategy  string
	Strategy         models.StrategyConfig
	BootstrapSeed    int64
	BootstrapWorkers int
	Window           session.Window
}

// SimulationService is the single entry point for running, storing and
// reading simulations. Handlers, queue jobs and the CLI only talk to it.
type SimulationService struct {
	factory   *engine.Factory
	loader    *BarLoader
	kpi       domsvc.KPICalculator
	results   domrepo.ResultStore
	archive   domrepo.TradeArchive
	publisher domrepo.ResultPublisher
	queue     queue.QueueService
	metrics   domrepo.Metrics
	log       *logger.Logger
	cfg       SimulationConfig
	now       func() time.Time
}

type SimulationOption func(*SimulationService)

// WithTradeArchive appends resolved trades to an archive after each run.
func WithTradeArchive(a domrepo.TradeArchive) SimulationOption {
	return func(s *SimulationService) { s.archive = a }
}

// WithResultPublisher fans trades and summaries out after each run.
func WithResultPublisher(p domrepo.ResultPublisher) SimulationOption {
	return func(s *SimulationService) { s.publisher = p }
}

// WithQueue routes SubmitSimulation through a job queue.
func WithQueue(q queue.QueueService) SimulationOption {
	return func(s *SimulationService) { s.queue = q }
}

func WithSimulationMetrics(m domrepo.Metrics) SimulationOption {
	return func(s *SimulationService) { s.metrics = m }
}

func WithSimulationLogger(l *logger.Logger) SimulationOption {
	return func(s *SimulationService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSimulationService(factory *engine.Factory, loader *BarLoader, results domrepo.ResultStore, cfg SimulationConfig, opts ...SimulationOption) *SimulationService {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = engine.ORBFVGName
	}
	if cfg.Window == (session.Window{}) {
		cfg.Window = session.DefaultWindow
	}
	if cfg.Strategy == (models.StrategyConfig{}) {
		cfg.Strategy = models.DefaultStrategyConfig()
	}
	s := &SimulationService{
		factory: factory,
		loader:  loader,
		kpi:     stats.NewCalculator(),
		results: results,
		log:     logger.Nop(),
		cfg:     cfg,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Params validates a request and resolves it against the base configuration.
func (s *SimulationService) Params(req *models.RunSimulationRequest) (models.SimulationParams, error) {
	if req == nil {
		return models.SimulationParams{}, fmt.Errorf("%w: empty request", models.ErrInvalidParams)
	}
	start, err := util.ParseDate(req.StartDate)
	if err != nil {
		return models.SimulationParams{}, fmt.Errorf("%w: start_date: %v", models.ErrInvalidParams, err)
	}
	end, err := util.ParseDate(req.EndDate)
	if err != nil {
		return models.SimulationParams{}, fmt.Errorf("%w: end_date: %v", models.ErrInvalidParams, err)
	}
	if !start.Before(end) {
		return models.SimulationParams{}, models.ErrInvalidRange
	}

	symbol := util.NormalizeSymbol(req.Symbol)
	switch {
	case symbol == "":
		return models.SimulationParams{}, fmt.Errorf("%w: symbol is required", models.ErrInvalidParams)
	case req.AccountSize <= 0:
		return models.SimulationParams{}, fmt.Errorf("%w: account_size must be positive", models.ErrInvalidParams)
	case req.PipValue <= 0:
		return models.SimulationParams{}, fmt.Errorf("%w: pip_value must be positive", models.ErrInvalidParams)
	case req.BootstrapIterations <= 0:
		return models.SimulationParams{}, fmt.Errorf("%w: bootstrap_iterations must be positive", models.ErrInvalidParams)
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = s.cfg.DefaultStrategy
	}
	cfg := req.Config.Apply(s.cfg.Strategy)
	if err := cfg.Validate(); err != nil {
		return models.SimulationParams{}, fmt.Errorf("%w: %v", models.ErrInvalidParams, err)
	}

	return models.SimulationParams{
		Symbol:              symbol,
		Strategy:            strategy,
		Start:               start,
		End:                 end,
		AccountSize:         req.AccountSize,
		PipValue:            req.PipValue,
		BootstrapIterations: req.BootstrapIterations,
		Config:              cfg,
	}, nil
}

// RunSimulation runs a backtest synchronously and stores the completed result.
func (s *SimulationService) RunSimulation(ctx context.Context, req *models.RunSimulationRequest) (*models.SimulationResult, error) {
	p, err := s.Params(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.factory.Create(p.Strategy); err != nil {
		return nil, err
	}
	return s.execute(ctx, s.newID(p.Symbol, p.Strategy), s.now().UTC(), p)
}

// SubmitSimulation stores a pending record and hands the run to the queue.
// Without a queue the run happens on a background goroutine.
func (s *SimulationService) SubmitSimulation(ctx context.Context, req *models.RunSimulationRequest) (*models.SimulationResult, error) {
	p, err := s.Params(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.factory.Create(p.Strategy); err != nil {
		return nil, err
	}

	pending := &models.SimulationResult{
		ID:        s.newID(p.Symbol, p.Strategy),
		Status:    models.StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.results.Save(ctx, pending); err != nil {
		return nil, fmt.Errorf("store pending simulation: %w", err)
	}

	if s.queue == nil {
		go func(id string, created time.Time) {
			if _, err := s.execute(context.Background(), id, created, p); err != nil {
				s.log.Warn("background simulation failed", logger.String("sim_id", id), logger.Error(err))
			}
		}(pending.ID, pending.CreatedAt)
		return pending, nil
	}

	msgID, err := s.queue.Enqueue(ctx, BacktestJobType, BacktestPayload{SimID: pending.ID, Request: *req})
	if err != nil {
		s.fail(ctx, pending.ID, pending.CreatedAt, p.Strategy, err)
		return nil, fmt.Errorf("enqueue simulation: %w", err)
	}
	s.log.Info("simulation queued",
		logger.String("sim_id", pending.ID),
		logger.String("message_id", msgID),
	)
	return pending, nil
}

// ExecuteQueued runs a simulation submitted earlier under simID.
func (s *SimulationService) ExecuteQueued(ctx context.Context, simID string, req *models.RunSimulationRequest) error {
	created := s.now().UTC()
	if prev, err := s.results.Get(ctx, simID); err == nil {
		created = prev.CreatedAt
	}
	p, err := s.Params(req)
	if err != nil {
		strategy := s.cfg.DefaultStrategy
		if req != nil && req.Strategy != "" {
			strategy = req.Strategy
		}
		s.fail(ctx, simID, created, strategy, err)
		return nil
	}
	_, err = s.execute(ctx, simID, created, p)
	return err
}

func (s *SimulationService) execute(ctx context.Context, id string, created time.Time, p models.SimulationParams) (*models.SimulationResult, error) {
	start := time.Now()
	log := s.log.With(logger.String("sim_id", id))
	log.Info("simulation started",
		logger.String("symbol", p.Symbol),
		logger.String("strategy", p.Strategy),
		logger.String("start", p.Start.Format(util.DateLayout)),
		logger.String("end", p.End.Format(util.DateLayout)),
	)

	res, records, err := s.simulate(ctx, log, id, p)
	if err != nil {
		s.fail(ctx, id, created, p.Strategy, err)
		return nil, err
	}
	res.CreatedAt = created
	done := s.now().UTC()
	res.CompletedAt = &done

	if err := s.results.Save(ctx, res); err != nil {
		s.recordError("result_store")
		return nil, fmt.Errorf("store simulation %s: %w", id, err)
	}

	s.fanOut(ctx, log, res, records)

	if s.metrics != nil {
		s.metrics.RecordSimulation(p.Strategy, string(models.StatusCompleted))
		s.metrics.RecordFinalEquity(p.Symbol, res.Summary.FinalEquity)
		s.metrics.RecordLatency("simulation", time.Since(start).Seconds())
	}
	log.Info("simulation completed",
		logger.Int("trades", res.Summary.TotalTrades),
		logger.Float64("final_equity", res.Summary.FinalEquity),
		logger.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (s *SimulationService) simulate(ctx context.Context, log *logger.Logger, id string, p models.SimulationParams) (*models.SimulationResult, []models.TradeRecord, error) {
	eng, err := s.factory.Create(p.Strategy)
	if err != nil {
		return nil, nil, err
	}

	bars, err := s.loader.Load(ctx, LoadBarsParams{Symbol: p.Symbol, Start: p.Start, End: p.End})
	if err != nil {
		return nil, nil, err
	}
	part := session.Partition(bars.M1, bars.M5, s.cfg.Window)

	runner := backtest.NewRunner(eng,
		backtest.WithLogger(log),
		backtest.WithMetrics(s.metrics),
	)
	run, err := runner.Run(ctx, part.Sessions, backtest.Params{
		InitialEquity: p.AccountSize,
		PipValue:      p.PipValue,
		Config:        p.Config,
	})
	if err != nil {
		return nil, nil, err
	}

	kpis := s.kpi.Compute(run.Trades, p.AccountSize, run.TradingDays)
	boot := stats.Bootstrap(models.PnLSeries(run.Trades), p.AccountSize, p.BootstrapIterations,
		stats.WithSeed(s.cfg.BootstrapSeed),
		stats.WithWorkers(s.cfg.BootstrapWorkers),
	)

	trades := make([]models.TradeView, len(run.Trades))
	for i, t := range run.Trades {
		trades[i] = models.NewTradeView(t)
	}

	return &models.SimulationResult{
		ID:     id,
		Status: models.StatusCompleted,
		Summary: &models.Summary{
			Symbol:          p.Symbol,
			StartDate:       p.Start.Format(util.DateLayout),
			EndDate:         p.End.Format(util.DateLayout),
			AccountSize:     p.AccountSize,
			Strategy:        p.Strategy,
			TradingDays:     run.TradingDays,
			MissingDataDays: run.MissingDays,
			KPIResult:       kpis.Rounded(),
			Bootstrap:       &boot,
		},
		Trades: trades,
	}, run.Trades, nil
}

// fanOut archives and publishes a completed run. Failures are logged only.
func (s *SimulationService) fanOut(ctx context.Context, log *logger.Logger, res *models.SimulationResult, records []models.TradeRecord) {
	if s.archive != nil && len(records) > 0 {
		if err := s.archive.Archive(ctx, res.ID, res.Summary.Symbol, records); err != nil {
			s.recordError("trade_archive")
			log.Warn("trade archive failed", logger.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTrades(ctx, res.ID, res.Trades); err != nil {
			s.recordError("result_publish")
			log.Warn("publishing trades failed", logger.Error(err))
		}
		if err := s.publisher.PublishSummary(ctx, res.ID, res.Summary); err != nil {
			s.recordError("result_publish")
			log.Warn("publishing summary failed", logger.Error(err))
		}
	}
}

func (s *SimulationService) fail(ctx context.Context, id string, created time.Time, strategy string, cause error) {
	done := s.now().UTC()
	rec := &models.SimulationResult{
		ID:          id,
		Status:      models.StatusFailed,
		Error:       cause.Error(),
		CreatedAt:   created,
		CompletedAt: &done,
	}
	if err := s.results.Save(ctx, rec); err != nil {
		s.log.Error("storing failed simulation", logger.String("sim_id", id), logger.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordSimulation(strategy, string(models.StatusFailed))
	}
	s.log.Warn("simulation failed", logger.String("sim_id", id), logger.Error(cause))
}

func (s *SimulationService) GetResult(ctx context.Context, id string) (*models.SimulationResult, error) {
	return s.results.Get(ctx, id)
}

func (s *SimulationService) ListResults(ctx context.Context) ([]models.SimulationListItem, error) {
	return s.results.List(ctx)
}

// Strategies lists the registered strategy names.
func (s *SimulationService) Strategies() []string {
	return s.factory.Available()
}

// LiveSignal evaluates the most recent complete session held in the bar store.
func (s *SimulationService) LiveSignal(ctx context.Context, req *models.LiveSignalRequest) (*models.LiveSignal, error) {
	symbol := util.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrInvalidParams)
	}
	if req.AccountSize <= 0 {
		return nil, fmt.Errorf("%w: account_size must be positive", models.ErrInvalidParams)
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.cfg.DefaultStrategy
	}
	eng, err := s.factory.Create(strategy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out := &models.LiveSignal{Symbol: symbol, Strategy: strategy, Source: "store"}

	m1, err := s.loader.Recent(ctx, symbol, domrepo.TF1m, liveM1Bars)
	if err != nil && !errors.Is(err, models.ErrNoData) {
		return nil, fmt.Errorf("load live 1m bars: %w", err)
	}
	m5, err := s.loader.Recent(ctx, symbol, domrepo.TF5m, liveM5Bars)
	if err != nil && !errors.Is(err, models.ErrNoData) {
		return nil, fmt.Errorf("load live 5m bars: %w", err)
	}

	sess, ok := session.Latest(m1, m5, s.cfg.Window)
	if !ok {
		out.Reason = ReasonInsufficientData
		return out, nil
	}

	out.Signal = eng.Evaluate(sess.M5, sess.M1, req.AccountSize, s.cfg.Strategy)
	if out.Signal == nil {
		out.Reason = ReasonNoSetup
	} else {
		out.Reason = ReasonSignalFound
		if s.metrics != nil {
			s.metrics.RecordSignal(strategy, out.Signal.Side)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("live_signal", time.Since(start).Seconds())
	}
	return out, nil
}

// newID renders {UTC YYYYMMDDTHHMMSS}_{SYMBOL}_{STRATEGY}_{6 upper hex}.
func (s *SimulationService) newID(symbol, strategy string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s_%s_%s",
		s.now().UTC().Format("20060102T150405"),
		symbol,
		strategy,
		strings.ToUpper(hex[:6]),
	)
}

func (s *SimulationService) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}
