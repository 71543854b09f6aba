package di

import (
	"context"
	"fmt"
	"time"

	domrepo "FinSim/internal/domain/repository"
	"FinSim/internal/handler/api"
	mid "FinSim/internal/middleware"
	"FinSim/internal/repository"
	"FinSim/internal/service/feed"
	"FinSim/internal/service/ratelimit"
	"FinSim/internal/services/engine"
	"FinSim/internal/services/provider"
	"FinSim/internal/services/session"
	"FinSim/internal/usecase"
	"FinSim/pkg/cache"
	pkgch "FinSim/pkg/clickhouse"
	"FinSim/pkg/config"
	xhttp "FinSim/pkg/http"
	pkgkafka "FinSim/pkg/kafka"
	"FinSim/pkg/logger"
	"FinSim/pkg/metrics"
	"FinSim/pkg/queue"
	"FinSim/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and makes sure the bar
// and trade tables exist.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithConnectRetries(3, 2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := append(append([]string{}, repository.BarSchema...), repository.TradeArchiveSchema...)
	if err := client.InitSchema(ctx, schema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisCache connects to Redis. It returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or falls back to memory
// only when Redis is disabled.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemoryTTL(time.Minute))
}

// ProvideBarRepository returns the ClickHouse bar store, read-through cached
// when Redis is available.
func ProvideBarRepository(ch *pkgch.Client, rc *cache.RedisCache, cfg *config.Config, log *logger.Logger) domrepo.BarRepository {
	store := repository.NewCHBarStore(ch, log)
	if rc == nil {
		return store
	}
	return repository.NewCachedBarStore(store, rc, cfg.Redis.BarTTL, log)
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

func ProvideBarProvider(cfg *config.Config, limiter *ratelimit.Limiter, m domrepo.Metrics, log *logger.Logger) domrepo.BarProvider {
	return provider.NewPolygon(provider.PolygonConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		Timeout:           cfg.Provider.Timeout,
		RequestsPerMinute: cfg.Provider.RequestsPerMinute,
	}, limiter, m, log)
}

func ProvideBarLoader(store domrepo.BarRepository, p domrepo.BarProvider, m domrepo.Metrics, log *logger.Logger) *usecase.BarLoader {
	return usecase.NewBarLoader(store, p, m, log)
}

func ProvideResultStore(c cache.Service, cfg *config.Config) domrepo.ResultStore {
	return repository.NewCacheResultStore(c, cfg.Simulation.ResultTTL)
}

func ProvideTradeArchive(ch *pkgch.Client) domrepo.TradeArchive {
	return repository.NewCHTradeArchive(ch)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ResultPublisher {
	if producer == nil {
		return repository.NopResultPublisher{}
	}
	return repository.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideQueue builds the simulation job queue on the Redis connection. It
// returns nil when the queue is disabled.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer,
		queue.WithKeyPrefix(cfg.Redis.Prefix+":"+cfg.Queue.Name),
	)
}

func ProvideStrategyFactory() *engine.Factory {
	return engine.NewFactory()
}

func ProvideSimulationService(
	cfg *config.Config,
	factory *engine.Factory,
	loader *usecase.BarLoader,
	results domrepo.ResultStore,
	archive domrepo.TradeArchive,
	publisher domrepo.ResultPublisher,
	q *queue.RedisQueue,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.SimulationService {
	opts := []usecase.SimulationOption{
		usecase.WithTradeArchive(archive),
		usecase.WithResultPublisher(publisher),
		usecase.WithSimulationMetrics(m),
		usecase.WithSimulationLogger(log),
	}
	if q != nil {
		opts = append(opts, usecase.WithQueue(q))
	}
	return usecase.NewSimulationService(factory, loader, results, usecase.SimulationConfig{
		DefaultStrategy:  cfg.Simulation.DefaultStrategy,
		Strategy:         cfg.Simulation.Strategy,
		BootstrapSeed:    cfg.Simulation.BootstrapSeed,
		BootstrapWorkers: cfg.Simulation.BootstrapWorkers,
		Window:           session.DefaultWindow,
	}, opts...)
}

func ProvideBacktestJob(sims *usecase.SimulationService) *usecase.BacktestJob {
	return usecase.NewBacktestJob(sims)
}

func ProvideSimulationHandler(cfg *config.Config, log *logger.Logger, sims *usecase.SimulationService, limiter *ratelimit.Limiter) *api.SimulationEchoHandler {
	return api.NewSimulationEchoHandler(log, sims, limiter, cfg.Server.LiveSignalRPS)
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.SimulationEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, prometheus.DefaultGatherer),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	)
}

// ProvideKafkaConsumer creates the bar ingest consumer. It returns nil unless
// both Kafka and its consumer are enabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewLoggingHook(log, 2*time.Second))
	return consumer, nil
}

func ProvideBarIngestHandler(cfg *config.Config, store domrepo.BarRepository, m domrepo.Metrics, log *logger.Logger) *usecase.BarIngestHandler {
	return usecase.NewBarIngestHandler(cfg.Kafka.BarsTopic, store, m, log)
}

// ProvideBarCollector wires the live feed into the bar store. It returns nil
// when the feed is disabled.
func ProvideBarCollector(cfg *config.Config, store domrepo.BarRepository, m domrepo.Metrics, log *logger.Logger) *usecase.BarCollector {
	if !cfg.Feed.Enabled {
		return nil
	}
	stream := feed.New(feed.Config{
		URL:            cfg.Feed.URL,
		APIKey:         cfg.Feed.APIKey,
		Symbols:        cfg.Feed.Symbols,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
	}, log)
	pipe := mid.NewBarPipeline(store, m,
		mid.WithSource(feed.SourceName),
		mid.WithPipelineLogger(log),
	)
	return usecase.NewBarCollector(stream, usecase.NewBarAggregator(), pipe, m, log)
}

// ProvideApp assembles the lifecycle from whichever optional components are
// enabled.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	srv *xhttp.Server,
	ch *pkgch.Client,
	c cache.Service,
	producer *pkgkafka.Producer,
	q *queue.RedisQueue,
	job *usecase.BacktestJob,
	consumer *pkgkafka.Consumer,
	ingest *usecase.BarIngestHandler,
	collector *usecase.BarCollector,
) *server.App {
	opts := []server.Option{
		server.WithCloser("clickhouse", ch),
		server.WithCloser("cache", c),
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
	}
	if q != nil {
		opts = append(opts, server.WithQueue(q, cfg.Queue.LogsTopic, job))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, ingest))
	}
	if collector != nil {
		opts = append(opts, server.WithCollector(collector))
	}
	return server.New(cfg, log, srv, opts...)
}
