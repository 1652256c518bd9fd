//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"ExoScan/pkg/config"
	"ExoScan/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisClient,
		ProvideCache,
		ProvideClickHouseClient,

		// History
		ProvideHistoryStore,
		ProvideHistorySinks,
		ProvideFeedHub,
		ProvideHistoryPipeline,

		// Evaluation
		ProvideGateway,
		ProvideClassifier,
		ProvideEvaluator,

		// Jobs and ingestion
		ProvideQueue,
		ProvideJobService,
		ProvideEvaluateJob,
		ProvideKafkaConsumer,
		ProvideHistoryIngestHandler,

		// HTTP
		ProvideRateLimiter,
		ProvidePredictHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
