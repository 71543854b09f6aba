package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinSim/pkg/config"
	xhttp "FinSim/pkg/http"
	pkgkafka "FinSim/pkg/kafka"
	"FinSim/pkg/logger"
	"FinSim/pkg/queue"
)

// Collector is a long-running ingest loop with its own shutdown sequence.
type Collector interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type closer struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	log       *logger.Logger
	http      *xhttp.Server
	consumer  *pkgkafka.Consumer
	handlers  []pkgkafka.MessageHandler
	queue     *queue.RedisQueue
	jobs      []queue.Job
	collector Collector
	closers   []closer
	logsTopic string
}

// Option attaches an optional component.
type Option func(*App)

// WithConsumer runs the Kafka consumer with the given topic handlers.
func WithConsumer(c *pkgkafka.Consumer, hs ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = append(a.handlers, hs...)
	}
}

// WithQueue runs the job queue workers. When logsTopic is set, warn and
// error entries are batched onto that queue topic.
func WithQueue(q *queue.RedisQueue, logsTopic string, jobs ...queue.Job) Option {
	return func(a *App) {
		a.queue = q
		a.logsTopic = logsTopic
		a.jobs = append(a.jobs, jobs...)
	}
}

func WithCollector(c Collector) Option {
	return func(a *App) { a.collector = c }
}

// WithCloser registers a resource released after every component stopped.
// Closers run in reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, closer{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *logger.Logger, srv *xhttp.Server, opts ...Option) *App {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{cfg: cfg, log: log, http: srv}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts
// down in reverse dependency order.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(runCtx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	timeout := 10 * time.Second
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		timeout = a.cfg.Server.ShutdownTimeout
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), timeout)
	defer done()
	return a.shutdown(shutdownCtx)
}

func (a *App) start(ctx context.Context) error {
	if a.queue != nil {
		a.queue.RegisterJobs(a.jobs)
		if err := a.queue.Start(); err != nil {
			return err
		}
		if a.logsTopic != "" {
			a.log.AddCollector(&logger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          a.logsTopic,
				Publisher:      a.queue,
			})
		}
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			return err
		}
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Warn("live feed not connected, collector will retry", logger.Error(err))
		}
	}

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			return err
		}
	}

	a.log.Info("finsim started",
		logger.Bool("queue", a.queue != nil),
		logger.Bool("consumer", a.consumer != nil),
		logger.Bool("collector", a.collector != nil),
	)
	return nil
}

// shutdown stops intake first (HTTP, consumer, feed), then workers, then
// releases clients.
func (a *App) shutdown(ctx context.Context) error {
	var errs []error

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("bar collector stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.queue != nil {
		a.log.RemoveCollector()
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.log.Warn("close error", logger.String("resource", c.name), logger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
