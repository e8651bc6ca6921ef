//go:build wireinject
// +build wireinject

package di

import (
	"Socially/internal/queues"
	"Socially/pkg/config"
	"Socially/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvidePrometheusRegistry,
		ProvideMetrics,
		ProvideObserver,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideCache,
		ProvideBrokerFactory,
		ProvideDeadLetterSink,
		ProvideMailTransport,
		ProvideRenderer,

		// Repositories
		ProvideAuthStore,
		ProvideUserStore,
		ProvideUserCache,

		// Workers and queues
		ProvideEmailWorker,
		ProvideUserWorker,
		ProvideAuthWorker,
		queues.NewCatalog,
		ProvideQueueSet,

		// Use cases
		ProvideLimiter,
		ProvidePassword,
		ProvideSignup,
		ProvideReplayHandler,

		// Transport
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
