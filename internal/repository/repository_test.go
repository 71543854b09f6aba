package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	"FinSim/pkg/cache"
	pkgkafka "FinSim/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minuteBars(start time.Time, n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		p := 100 + float64(i)*0.1
		out[i] = models.Bar{Timestamp: start.Add(time.Duration(i) * time.Minute), Open: p, High: p + 0.2, Low: p - 0.2, Close: p + 0.1, Volume: 1000}
	}
	return out
}

var day = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func TestMemoryBarStoreUpsertAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBarStore()

	bars := minuteBars(day, 30)
	n, err := s.Save(ctx, "QQQ", domrepo.TF1m, bars[10:], "csv")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	_, err = s.Save(ctx, "QQQ", domrepo.TF1m, bars[:15], "csv")
	require.NoError(t, err)

	got, err := s.Get(ctx, "QQQ", domrepo.TF1m, day.Add(5*time.Minute), day.Add(25*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, got, 20)
	assert.Equal(t, day.Add(5*time.Minute), got[0].Timestamp)

	limited, _ := s.Get(ctx, "QQQ", domrepo.TF1m, day, day.Add(time.Hour), 3)
	assert.Len(t, limited, 3)

	latest, _ := s.Latest(ctx, "QQQ", domrepo.TF1m, 2)
	require.Len(t, latest, 2)
	assert.True(t, latest[0].Timestamp.Before(latest[1].Timestamp))
	assert.Equal(t, bars[29].Timestamp, latest[1].Timestamp)

	ok, _ := s.HasData(ctx, "QQQ", domrepo.TF1m, day, day.Add(time.Hour))
	assert.True(t, ok)
	ok, _ = s.HasData(ctx, "QQQ", domrepo.TF5m, day, day.Add(time.Hour))
	assert.False(t, ok)
}

func TestMemoryBarStoreDropsInvalidBars(t *testing.T) {
	s := NewMemoryBarStore()
	n, err := s.Save(context.Background(), "QQQ", domrepo.TF1m, []models.Bar{{Open: 1, High: 1, Low: 1, Close: 1}}, "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type countingRepo struct {
	*MemoryBarStore
	gets int
}

func (c *countingRepo) Get(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	c.gets++
	return c.MemoryBarStore.Get(ctx, symbol, tf, from, to, limit)
}

func TestCachedBarStoreReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{MemoryBarStore: NewMemoryBarStore()}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCachedBarStore(inner, mc, time.Minute, nil)

	_, err := s.Save(ctx, "QQQ", domrepo.TF1m, minuteBars(day, 20), "polygon")
	require.NoError(t, err)

	from, to := day, day.Add(time.Hour)
	first, err := s.Get(ctx, "QQQ", domrepo.TF1m, from, to, 0)
	require.NoError(t, err)
	second, err := s.Get(ctx, "QQQ", domrepo.TF1m, from, to, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.gets)

	_, err = s.Save(ctx, "QQQ", domrepo.TF1m, minuteBars(day.Add(20*time.Minute), 5), "polygon")
	require.NoError(t, err)
	third, err := s.Get(ctx, "QQQ", domrepo.TF1m, from, to, 0)
	require.NoError(t, err)
	assert.Len(t, third, 25)
	assert.Equal(t, 2, inner.gets)
}

func TestCacheResultStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheResultStore(mc, time.Hour)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSimulationNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, &models.SimulationResult{ID: fmt.Sprintf("sim-%d", i), Status: models.StatusPending}))
	}
	require.NoError(t, s.Save(ctx, &models.SimulationResult{
		ID:      "sim-1",
		Status:  models.StatusCompleted,
		Summary: &models.Summary{Symbol: "QQQ"},
	}))

	got, err := s.Get(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"sim-0", "sim-1", "sim-2"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "QQQ", list[1].Summary.Symbol)

	assert.Error(t, s.Save(ctx, &models.SimulationResult{}))
}

func TestCacheResultStoreSkipsExpired(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheResultStore(mc, time.Millisecond)

	require.NoError(t, s.Save(ctx, &models.SimulationResult{ID: "old"}))
	time.Sleep(5 * time.Millisecond)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type fakeProducer struct {
	topic string
	msgs  []pkgkafka.Message
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaResultPublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaResultPublisher{producer: fp, topic: "results"}
	ctx := context.Background()

	require.NoError(t, p.PublishTrades(ctx, "sim-1", []models.TradeView{{SignalID: "a"}, {SignalID: "b"}}))
	require.NoError(t, p.PublishSummary(ctx, "sim-1", &models.Summary{Symbol: "QQQ", KPIResult: models.KPIResult{TotalTrades: 2}}))
	require.NoError(t, p.PublishTrades(ctx, "sim-1", nil))

	require.Len(t, fp.msgs, 3)
	assert.Equal(t, "results", fp.topic)
	assert.Equal(t, "sim-1", string(fp.msgs[0].Key))
	assert.Equal(t, MessageTypeSummary, fp.msgs[2].Headers["type"])

	raw, err := json.Marshal(fp.msgs[2].Value)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sim_id":"sim-1"`)
	assert.Contains(t, string(raw), `"total_trades":2`)

	raw, err = json.Marshal(fp.msgs[0].Value)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"signal_id":"a"`)
}

func TestBuildBarInsertSkipsInvalid(t *testing.T) {
	bars := minuteBars(day, 3)
	bars[1].High = bars[1].Low - 1
	q, args := buildBarInsert("QQQ", domrepo.TF5m, bars, "polygon")

	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	assert.Len(t, args, 2*barColumns)
	assert.Equal(t, "5m", args[2])
	assert.Equal(t, "polygon", args[8])
}

func TestBuildTradeInsert(t *testing.T) {
	trades := []models.TradeRecord{
		{Signal: models.TradeSignal{ID: "s1", Side: models.SideLong}, Outcome: models.OutcomeTarget, ExitTime: day},
		{Signal: models.TradeSignal{ID: "s2", Side: models.SideShort}, Outcome: models.OutcomeExpired},
	}
	q, args := buildTradeInsert("sim", "QQQ", trades)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO simulation_trades"))
	assert.Len(t, args, 2*tradeColumns)
	assert.Equal(t, day, args[10])
	assert.Nil(t, args[tradeColumns+10])
}
