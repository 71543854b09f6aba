package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinSim/internal/domain/models"
	domrepo "FinSim/internal/domain/repository"
	"FinSim/pkg/logger"
)

// ClosedBar is a finished aggregation bucket ready to persist.
type ClosedBar struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Bar       models.Bar
}

// BarSink is the part of the bar repository the pipeline writes to.
type BarSink interface {
	Save(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar, source string) (int, error)
}

// BarPipeline sits between the live aggregator and the bar store.
// It validates closed bars and buffers them while the store is unavailable.
type BarPipeline struct {
	sink    BarSink
	metrics domrepo.Metrics
	log     *logger.Logger
	source  string
	bufSize int
	bufCh   chan ClosedBar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex

	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*BarPipeline)

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithSource sets the source tag written with every bar.
func WithSource(s string) PipelineOption {
	return func(p *BarPipeline) {
		if s != "" {
			p.source = s
		}
	}
}

// WithBackoff bounds the delay between retries of a failed save.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *BarPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *BarPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewBarPipeline creates a new pipeline.
func NewBarPipeline(sink BarSink, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		sink:       sink,
		metrics:    metrics,
		log:        logger.Nop(),
		source:     "live",
		bufSize:    1000,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan ClosedBar, p.bufSize)
	return p
}

// Start launches the background retry of buffered bars.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stop := make(chan struct{})
	p.stopCh = stop
	p.mu.Unlock()

	go func() {
		backoff := p.backoffMin
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case cb := <-p.bufCh:
				if err := p.save(ctx, cb); err != nil {
					if backoff < p.backoffMax {
						backoff *= 2
						if backoff > p.backoffMax {
							backoff = p.backoffMax
						}
					}
					p.recordError("pipeline_flush")
					p.wait(ctx, stop, backoff)
					p.buffer(cb)
					continue
				}
				backoff = p.backoffMin
			}
		}
	}()
}

func (p *BarPipeline) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-stop:
	}
}

// Stop stops the background retry. Buffered bars stay queued for the next
// Start.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
	if n := len(p.bufCh); n > 0 {
		p.log.Warn("bar pipeline stopped with buffered bars", logger.Int("buffered", n))
	}
}

// Pending returns the number of bars waiting for a retry.
func (p *BarPipeline) Pending() int { return len(p.bufCh) }

// Process validates and saves one closed bar, buffering it when the store fails.
func (p *BarPipeline) Process(ctx context.Context, cb ClosedBar) error {
	start := time.Now()
	if err := validateBar(cb); err != nil {
		p.recordError("pipeline_validate")
		return err
	}

	if err := p.save(ctx, cb); err != nil {
		p.recordError("pipeline_process")
		p.buffer(cb)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

func (p *BarPipeline) save(ctx context.Context, cb ClosedBar) error {
	n, err := p.sink.Save(ctx, cb.Symbol, cb.Timeframe, []models.Bar{cb.Bar}, p.source)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordBarsStored(cb.Timeframe, p.source, n)
	}
	return nil
}

func (p *BarPipeline) buffer(cb ClosedBar) {
	select {
	case p.bufCh <- cb:
	default:
		p.recordError("pipeline_buffer_full")
		p.log.Warn("bar pipeline buffer full, dropping bar",
			logger.String("symbol", cb.Symbol),
			logger.String("interval", string(cb.Timeframe)),
			logger.Time("ts", cb.Bar.Timestamp),
		)
	}
}

func (p *BarPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateBar(cb ClosedBar) error {
	if cb.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if !domrepo.IsValidTimeframe(cb.Timeframe) {
		return fmt.Errorf("unsupported interval %q", cb.Timeframe)
	}
	if !cb.Bar.Valid() {
		return fmt.Errorf("invalid bar at %s", cb.Bar.Timestamp.Format(models.BarTimeLayout))
	}
	return nil
}
