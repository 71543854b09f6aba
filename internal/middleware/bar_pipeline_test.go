package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	saved    []models.Bar
	sources  []string
}

func (s *flakySink) Save(_ context.Context, _ string, _ domrepo.Timeframe, bars []models.Bar, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("store down")
	}
	s.saved = append(s.saved, bars...)
	s.sources = append(s.sources, source)
	return len(bars), nil
}

func (s *flakySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func closedBar() ClosedBar {
	return ClosedBar{
		Symbol:    "QQQ",
		Timeframe: domrepo.TF1m,
		Bar: models.Bar{
			Timestamp: time.Date(2024, 3, 4, 9, 31, 0, 0, time.UTC),
			Open:      10, High: 11, Low: 9, Close: 10.5, Volume: 100,
		},
	}
}

func TestBarPipelineSavesValidBar(t *testing.T) {
	sink := &flakySink{}
	p := NewBarPipeline(sink, nil, WithSource("feed"))

	require.NoError(t, p.Process(context.Background(), closedBar()))
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, []string{"feed"}, sink.sources)
}

func TestBarPipelineRejectsInvalid(t *testing.T) {
	p := NewBarPipeline(&flakySink{}, nil)

	cb := closedBar()
	cb.Bar.High = 8
	assert.Error(t, p.Process(context.Background(), cb))

	cb = closedBar()
	cb.Timeframe = "15m"
	assert.Error(t, p.Process(context.Background(), cb))

	cb = closedBar()
	cb.Symbol = ""
	assert.Error(t, p.Process(context.Background(), cb))
	assert.Zero(t, p.Pending())
}

func TestBarPipelineRetriesBufferedBars(t *testing.T) {
	sink := &flakySink{failures: 2}
	p := NewBarPipeline(sink, nil, WithBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, closedBar())
	require.Error(t, err)
	assert.Equal(t, 1, p.Pending())

	p.Start(ctx)
	defer p.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBarPipelineRestartsAfterStop(t *testing.T) {
	sink := &flakySink{failures: 1}
	p := NewBarPipeline(sink, nil, WithBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	p.Stop()

	require.Error(t, p.Process(ctx, closedBar()))
	assert.Equal(t, 1, p.Pending())

	p.Start(ctx)
	defer p.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Pending())
}

func TestBarPipelineDropsWhenBufferFull(t *testing.T) {
	sink := &flakySink{failures: 10}
	p := NewBarPipeline(sink, nil, WithBufferSize(1))

	_ = p.Process(context.Background(), closedBar())
	_ = p.Process(context.Background(), closedBar())
	assert.Equal(t, 1, p.Pending())
}
