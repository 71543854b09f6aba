package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	domsvc "FinSim/internal/domain/service"
	"FinSim/internal/repository"
	"FinSim/internal/services/engine"
	"FinSim/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubStrategy = "STUB"

// stubEngine goes long on the first fine bar with a 1 point stop and a 3 point target.
type stubEngine struct{}

func (stubEngine) Name() string { return stubStrategy }

func (stubEngine) Evaluate(m5, m1 []models.Bar, equity float64, cfg models.StrategyConfig) *models.TradeSignal {
	if len(m1) == 0 {
		return nil
	}
	b := m1[0]
	return &models.TradeSignal{
		ID:           "sig-" + b.Timestamp.Format("20060102"),
		Timestamp:    b.Timestamp,
		Side:         models.SideLong,
		Entry:        b.Close,
		Stop:         b.Close - 1,
		Target:       b.Close + 3,
		Risk:         1,
		PositionSize: 1,
		Confidence:   models.ConfidenceStandard,
	}
}

const quietStrategy = "QUIET"

type quietEngine struct{}

func (quietEngine) Name() string { return quietStrategy }

func (quietEngine) Evaluate([]models.Bar, []models.Bar, float64, models.StrategyConfig) *models.TradeSignal {
	return nil
}

func risingBars(start time.Time, step time.Duration, n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		p := 100 + float64(i)*0.2
		out[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      p, High: p + 0.3, Low: p - 0.1, Close: p + 0.2, Volume: 1000,
		}
	}
	return out
}

func seedDay(t *testing.T, store domrepo.BarRepository, day time.Time) {
	t.Helper()
	ctx := context.Background()
	open := day.Add(9*time.Hour + 30*time.Minute)
	_, err := store.Save(ctx, "QQQ", domrepo.TF1m, risingBars(open, time.Minute, 91), "test")
	require.NoError(t, err)
	_, err = store.Save(ctx, "QQQ", domrepo.TF5m, risingBars(open, 5*time.Minute, 19), "test")
	require.NoError(t, err)
}

var (
	day1 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
)

type fakeProvider struct {
	mu    sync.Mutex
	calls map[domrepo.Timeframe]int
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchBars(_ context.Context, _ string, tf domrepo.Timeframe, from, _ time.Time) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[domrepo.Timeframe]int)
	}
	p.calls[tf]++
	if p.err != nil {
		return nil, p.err
	}
	return risingBars(from.Add(9*time.Hour+30*time.Minute), tf.Duration(), 20), nil
}

type fakeQueue struct {
	msgType string
	payload []byte
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.msgType = msgType
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	q.payload = b
	return "msg-1", nil
}

type recordingPublisher struct {
	trades  int
	summary *models.Summary
}

func (p *recordingPublisher) PublishTrades(_ context.Context, _ string, trades []models.TradeView) error {
	p.trades += len(trades)
	return nil
}

func (p *recordingPublisher) PublishSummary(_ context.Context, _ string, s *models.Summary) error {
	p.summary = s
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingArchive struct{ calls int }

func (a *failingArchive) Archive(context.Context, string, string, []models.TradeRecord) error {
	a.calls++
	return errors.New("clickhouse down")
}

func newTestService(t *testing.T, store domrepo.BarRepository, opts ...SimulationOption) (*SimulationService, *repository.CacheResultStore) {
	t.Helper()
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	results := repository.NewCacheResultStore(mem, time.Hour)

	f := engine.NewFactory()
	f.Register(stubStrategy, func() domsvc.StrategyEngine { return stubEngine{} })
	f.Register(quietStrategy, func() domsvc.StrategyEngine { return quietEngine{} })

	loader := NewBarLoader(store, nil, nil, nil)
	return NewSimulationService(f, loader, results, SimulationConfig{BootstrapSeed: 7, BootstrapWorkers: 2}, opts...), results
}

func runRequest() *models.RunSimulationRequest {
	return &models.RunSimulationRequest{
		Symbol:              "qqq",
		StartDate:           "2024-03-04",
		EndDate:             "2024-03-05",
		AccountSize:         10000,
		PipValue:            1,
		Strategy:            stubStrategy,
		BootstrapIterations: 50,
	}
}

func TestBarLoaderFallsBackToProviderAndSaves(t *testing.T) {
	store := repository.NewMemoryBarStore()
	prov := &fakeProvider{}
	l := NewBarLoader(store, prov, nil, nil)

	res, err := l.Load(context.Background(), LoadBarsParams{Symbol: "QQQ", Start: day1, End: day2})
	require.NoError(t, err)
	assert.Len(t, res.M1, 20)
	assert.Len(t, res.M5, 20)
	assert.Equal(t, "fake", res.SourceM1)

	res, err = l.Load(context.Background(), LoadBarsParams{Symbol: "QQQ", Start: day1, End: day2})
	require.NoError(t, err)
	assert.Equal(t, "store", res.SourceM1)
	assert.Equal(t, "store", res.SourceM5)
	assert.Equal(t, 1, prov.calls[domrepo.TF1m])
	assert.Equal(t, 1, prov.calls[domrepo.TF5m])
}

func TestBarLoaderErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewBarLoader(repository.NewMemoryBarStore(), nil, nil, nil).
		Load(ctx, LoadBarsParams{Symbol: "QQQ", Start: day2, End: day1})
	assert.ErrorIs(t, err, models.ErrInvalidRange)

	_, err = NewBarLoader(repository.NewMemoryBarStore(), nil, nil, nil).
		Load(ctx, LoadBarsParams{Symbol: "QQQ", Start: day1, End: day2})
	assert.ErrorIs(t, err, models.ErrNoData)

	_, err = NewBarLoader(repository.NewMemoryBarStore(), &fakeProvider{err: errors.New("boom")}, nil, nil).
		Load(ctx, LoadBarsParams{Symbol: "QQQ", Start: day1, End: day2})
	assert.Error(t, err)
}

func TestRunSimulationStoresAndPublishes(t *testing.T) {
	store := repository.NewMemoryBarStore()
	seedDay(t, store, day1)
	seedDay(t, store, day2)

	pub := &recordingPublisher{}
	arch := &failingArchive{}
	svc, _ := newTestService(t, store, WithResultPublisher(pub), WithTradeArchive(arch))

	res, err := svc.RunSimulation(context.Background(), runRequest())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, res.Status)
	parts := strings.Split(res.ID, "_")
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], len("20060102T150405"))
	assert.Equal(t, "QQQ", parts[1])
	assert.Equal(t, stubStrategy, parts[2])
	assert.Regexp(t, `^[0-9A-F]{6}$`, parts[3])

	require.NotNil(t, res.Summary)
	assert.Equal(t, 2, res.Summary.TradingDays)
	assert.Equal(t, 2, res.Summary.TotalTrades)
	assert.Equal(t, 2, res.Summary.Wins)
	assert.Equal(t, "2024-03-04", res.Summary.StartDate)
	require.NotNil(t, res.Summary.Bootstrap)
	assert.Equal(t, 50, res.Summary.Bootstrap.Iterations)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, models.OutcomeTarget, res.Trades[0].Outcome)

	assert.Equal(t, 2, pub.trades)
	assert.Equal(t, res.Summary, pub.summary)
	assert.Equal(t, 1, arch.calls)

	got, err := svc.GetResult(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)

	list, err := svc.ListResults(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.ID, list[0].ID)
}

func TestRunSimulationValidation(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryBarStore())
	ctx := context.Background()

	req := runRequest()
	req.EndDate = req.StartDate
	_, err := svc.RunSimulation(ctx, req)
	assert.ErrorIs(t, err, models.ErrInvalidRange)

	req = runRequest()
	req.AccountSize = 0
	_, err = svc.RunSimulation(ctx, req)
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	req = runRequest()
	req.BootstrapIterations = 0
	_, err = svc.RunSimulation(ctx, req)
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	req = runRequest()
	req.Strategy = "NOPE"
	_, err = svc.RunSimulation(ctx, req)
	assert.ErrorIs(t, err, models.ErrUnknownStrategy)

	_, err = svc.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSimulationNotFound)
}

func TestSubmitSimulationThroughQueue(t *testing.T) {
	store := repository.NewMemoryBarStore()
	seedDay(t, store, day1)
	seedDay(t, store, day2)

	q := &fakeQueue{}
	svc, _ := newTestService(t, store, WithQueue(q))
	ctx := context.Background()

	pending, err := svc.SubmitSimulation(ctx, runRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Equal(t, BacktestJobType, q.msgType)

	got, err := svc.GetResult(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	job := NewBacktestJob(svc)
	require.NoError(t, job.Handle(ctx, q.payload))

	got, err = svc.GetResult(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, pending.CreatedAt.Unix(), got.CreatedAt.Unix())
	require.NotNil(t, got.CompletedAt)
}

func TestBacktestJobRecordsFailure(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryBarStore())
	ctx := context.Background()
	job := NewBacktestJob(svc)

	payload, err := json.Marshal(BacktestPayload{SimID: "sim-x", Request: *runRequest()})
	require.NoError(t, err)

	// no bars stored and no provider: the run fails and is retried by the queue
	assert.Error(t, job.Handle(ctx, payload))
	got, err := svc.GetResult(ctx, "sim-x")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	assert.Error(t, job.Handle(ctx, json.RawMessage(`{"request":{}}`)))
}

func TestSubmitSimulationEnqueueFailure(t *testing.T) {
	svc, results := newTestService(t, repository.NewMemoryBarStore(), WithQueue(&fakeQueue{err: errors.New("redis down")}))

	_, err := svc.SubmitSimulation(context.Background(), runRequest())
	require.Error(t, err)

	list, err := results.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusFailed, list[0].Status)
}

func TestLiveSignal(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryBarStore()
	svc, _ := newTestService(t, store)

	live, err := svc.LiveSignal(ctx, &models.LiveSignalRequest{Symbol: "QQQ", Strategy: stubStrategy, AccountSize: 10000})
	require.NoError(t, err)
	assert.Nil(t, live.Signal)
	assert.Equal(t, ReasonInsufficientData, live.Reason)

	seedDay(t, store, day2)
	live, err = svc.LiveSignal(ctx, &models.LiveSignalRequest{Symbol: "qqq", Strategy: stubStrategy, AccountSize: 10000})
	require.NoError(t, err)
	require.NotNil(t, live.Signal)
	assert.Equal(t, ReasonSignalFound, live.Reason)
	assert.Equal(t, "QQQ", live.Symbol)

	live, err = svc.LiveSignal(ctx, &models.LiveSignalRequest{Symbol: "QQQ", Strategy: quietStrategy, AccountSize: 10000})
	require.NoError(t, err)
	assert.Nil(t, live.Signal)
	assert.Equal(t, ReasonNoSetup, live.Reason)

	_, err = svc.LiveSignal(ctx, &models.LiveSignalRequest{Symbol: "QQQ", Strategy: "NOPE", AccountSize: 10000})
	assert.ErrorIs(t, err, models.ErrUnknownStrategy)
}

func TestStrategies(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryBarStore())
	assert.Equal(t, []string{engine.ORBFVGName, quietStrategy, stubStrategy}, svc.Strategies())
}
