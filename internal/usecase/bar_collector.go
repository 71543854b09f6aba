package usecase

import (
	"context"
	"sync"
	"time"

	"FinSim/internal/domain/models"
	drepo "FinSim/internal/domain/repository"
	mid "FinSim/internal/middleware"
	"FinSim/pkg/logger"
	"FinSim/pkg/util"
)

// BarCollector turns the live trade stream into stored bars.
type BarCollector struct {
	stream  drepo.MarketStream
	agg     *BarAggregator
	pipe    *mid.BarPipeline
	metrics drepo.Metrics
	log     *logger.Logger

	flushEvery time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewBarCollector creates a new BarCollector instance.
func NewBarCollector(stream drepo.MarketStream, agg *BarAggregator, pipe *mid.BarPipeline, metrics drepo.Metrics, l *logger.Logger) *BarCollector {
	if l == nil {
		l = logger.Nop()
	}
	if agg == nil {
		agg = NewBarAggregator()
	}
	return &BarCollector{
		stream:     stream,
		agg:        agg,
		pipe:       pipe,
		metrics:    metrics,
		log:        l,
		flushEvery: 5 * time.Second,
		now:        func() time.Time { return util.WallClock(time.Now()) },
	}
}

// IsConnected returns true if the market stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects and begins aggregating. A failed connect is returned but the
// loop still runs and keeps reconnecting on the flush ticker.
func (c *BarCollector) Start(ctx context.Context) error {
	err := c.stream.Connect(ctx)
	if err == nil {
		err = c.stream.Subscribe(ctx)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)

	c.wg.Add(1)
	go c.consume(ctx, err == nil)
	return err
}

func (c *BarCollector) consume(ctx context.Context, connected bool) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	var (
		tickCh <-chan *models.Tick
		errCh  <-chan error
	)
	if connected {
		tickCh, errCh = c.stream.Read(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.emit(ctx, c.agg.Flush(c.now()))
			if tickCh == nil && errCh == nil && c.reconnect(ctx) {
				tickCh, errCh = c.stream.Read(ctx)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.recordError("stream")
			c.log.Warn("live feed error, reconnecting", logger.Error(err))
			tickCh, errCh = nil, nil
			if c.reconnect(ctx) {
				tickCh, errCh = c.stream.Read(ctx)
			}
		case t, ok := <-tickCh:
			if !ok {
				tickCh = nil
				continue
			}
			c.emit(ctx, c.agg.Add(t))
		}
	}
}

func (c *BarCollector) reconnect(ctx context.Context) bool {
	if err := c.stream.Reconnect(ctx); err != nil {
		c.log.Error("live feed reconnect failed", logger.Error(err))
		return false
	}
	return true
}

func (c *BarCollector) emit(ctx context.Context, bars []mid.ClosedBar) {
	for _, cb := range bars {
		if err := c.pipe.Process(ctx, cb); err != nil {
			c.log.Debug("closed bar not saved",
				logger.String("symbol", cb.Symbol),
				logger.String("interval", string(cb.Timeframe)),
				logger.Error(err),
			)
		}
	}
}

// Ingest applies one tick synchronously.
func (c *BarCollector) Ingest(ctx context.Context, t *models.Tick) {
	c.emit(ctx, c.agg.Add(t))
}

func (c *BarCollector) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

// Shutdown flushes open buckets, stops the pipeline and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.emit(ctx, c.agg.Flush(c.now()))
	c.pipe.Stop()
	return c.stream.Close()
}
