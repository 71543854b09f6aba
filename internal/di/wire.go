//go:build wireinject
// +build wireinject

package di

import (
	"FinSim/pkg/config"
	"FinSim/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideRateLimiter,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideQueue,

		// Repositories
		ProvideBarRepository,
		ProvideBarProvider,
		ProvideResultStore,
		ProvideTradeArchive,
		ProvideResultPublisher,

		// Use cases
		ProvideStrategyFactory,
		ProvideBarLoader,
		ProvideSimulationService,
		ProvideBacktestJob,
		ProvideBarIngestHandler,
		ProvideBarCollector,

		// Transport
		ProvideSimulationHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
