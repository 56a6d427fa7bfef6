//go:build wireinject
// +build wireinject

package di

import (
	"AirView/pkg/config"
	"AirView/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideTracing,

		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		ProvideInsightRepository,

		ProvideInsightService,
		ProvideInsightQueue,
		ProvideInsightPublisher,
		ProvideInsightIngestor,
		ProvideKafkaConsumer,
		ProvideKafkaInsightsHandler,
		ProvideRetentionJob,

		ProvideRateLimiter,
		ProvideInsightsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
