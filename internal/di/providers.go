package di

import (
	"context"
	"fmt"

	domrepo "Socially/internal/domain/repository"
	"Socially/internal/domain/service"
	"Socially/internal/handler/api"
	"Socially/internal/queues"
	internalrepo "Socially/internal/repository"
	"Socially/internal/service/mail"
	"Socially/internal/service/ratelimit"
	"Socially/internal/service/templates"
	"Socially/internal/usecase"
	"Socially/internal/workers"
	"Socially/pkg/cache"
	"Socially/pkg/config"
	xhttp "Socially/pkg/http"
	pkgkafka "Socially/pkg/kafka"
	"Socially/pkg/logger"
	"Socially/pkg/metrics"
	"Socially/pkg/queue"
	"Socially/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// ProvidePrometheusRegistry creates the registry every collector registers on.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the job lifecycle recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

func ProvideObserver(rec *metrics.Recorder) queue.Observer {
	return rec
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the root logger. Aggregated errors are shipped to
// kafka.log_topic when a producer exists, so it must run before any Named child.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	lgr, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogTopic != "" {
		lgr.AddCollector(&logger.CollectionConfig{
			Topic:     cfg.Kafka.LogTopic,
			Publisher: producer,
		})
	}
	return lgr, nil
}

func newRedisClient(cfg *config.Config) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Redis.Addr},
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
	})
}

// ProvideCache creates the key-value store backing accounts and users.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Driver == "memory" {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryCleanup(cfg.Cache.Cleanup),
		), nil
	}
	c, err := cache.NewRedisCache(newRedisClient(cfg), cache.WithRedisPrefix(cfg.Cache.Prefix))
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideBrokerFactory gives each queue its own broker connection.
func ProvideBrokerFactory(cfg *config.Config) queue.BrokerFactory {
	if cfg.Broker.Driver == "memory" {
		return queue.MemoryBrokerFactory(cfg.Broker.DeadRetention)
	}
	return queue.RedisBrokerFactory(
		func() redis.UniversalClient { return newRedisClient(cfg) },
		queue.WithKeyPrefix(cfg.Broker.KeyPrefix),
		queue.WithDeadRetention(cfg.Broker.DeadRetention),
	)
}

// ProvideDeadLetterSink publishes dead letters to Kafka. The result is a nil
// interface when Kafka is disabled.
func ProvideDeadLetterSink(cfg *config.Config, producer *pkgkafka.Producer) queue.DeadLetterSink {
	if producer == nil || cfg.Kafka.DeadLetterTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaDeadLetterSink(producer, cfg.Kafka.DeadLetterTopic)
}

func ProvideMailTransport(cfg *config.Config, lgr *logger.Logger) (domrepo.MailTransport, error) {
	t, err := mail.New(cfg, lgr)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	return t, nil
}

func ProvideRenderer() (service.Renderer, error) {
	r, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	return r, nil
}

func ProvideAuthStore(c cache.Service) domrepo.AuthStore {
	return internalrepo.NewAuthStore(c)
}

func ProvideUserStore(c cache.Service) domrepo.UserStore {
	return internalrepo.NewUserStore(c)
}

func ProvideUserCache(cfg *config.Config, c cache.Service) domrepo.UserCache {
	return internalrepo.NewUserCache(c, cfg.Cache.UserTTL)
}

func ProvideEmailWorker(t domrepo.MailTransport, lgr *logger.Logger) *workers.EmailWorker {
	return workers.NewEmailWorker(t, lgr)
}

func ProvideUserWorker(s domrepo.UserStore, lgr *logger.Logger) *workers.UserWorker {
	return workers.NewUserWorker(s, lgr)
}

func ProvideAuthWorker(s domrepo.AuthStore, lgr *logger.Logger) *workers.AuthWorker {
	return workers.NewAuthWorker(s, lgr)
}

// ProvideQueueSet builds the email, user and auth queues with the
// processors listed in the config.
func ProvideQueueSet(
	cfg *config.Config,
	lgr *logger.Logger,
	factory queue.BrokerFactory,
	catalog queues.Catalog,
	observer queue.Observer,
	sink queue.DeadLetterSink,
) (*queues.Set, error) {
	return queues.Build(cfg, queues.Deps{
		Factory:  factory,
		Catalog:  catalog,
		Logger:   lgr,
		Observer: observer,
		Sink:     sink,
	})
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.ForgotPasswordBurst, cfg.RateLimit.ForgotPasswordPerMin)
}

func ProvidePassword(
	cfg *config.Config,
	lgr *logger.Logger,
	auth domrepo.AuthStore,
	renderer service.Renderer,
	set *queues.Set,
	limiter *ratelimit.Limiter,
) *usecase.Password {
	return usecase.NewPassword(usecase.PasswordConfig{
		ClientURL:  cfg.ClientURL,
		TokenTTL:   cfg.Password.ResetTokenTTL,
		BcryptCost: cfg.Password.BcryptCost,
	}, auth, renderer, set.Email, limiter, lgr)
}

func ProvideSignup(cfg *config.Config, lgr *logger.Logger, auth domrepo.AuthStore, users domrepo.UserCache, set *queues.Set) *usecase.Signup {
	return usecase.NewSignup(auth, users, set.Auth, set.User, cfg.Password.BcryptCost, cfg.Cache.UserTTL, lgr)
}

// ProvideReplayHandler returns nil when Kafka is disabled.
func ProvideReplayHandler(cfg *config.Config, lgr *logger.Logger, set *queues.Set) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled || cfg.Kafka.ReplayTopic == "" {
		return nil
	}
	return usecase.NewDeadLetterReplay(cfg.Kafka.ReplayTopic, set.Registry, lgr)
}

func ProvideHTTPHandler(lgr *logger.Logger, password *usecase.Password, signup *usecase.Signup, set *queues.Set) xhttp.Handler {
	return xhttp.Handlers{
		api.NewAuthHandler(lgr, password, signup),
		api.NewQueueHandler(lgr, set.Registry),
	}
}

func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, reg *prometheus.Registry, h xhttp.Handler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.ClientURL),
		xhttp.WithServerLogger(lgr),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path, cfg.Server.SlowRequest))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideKafkaConsumer creates the replay consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger, reg *prometheus.Registry, rec *metrics.Recorder) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(lgr),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(context.Context, string, kafkago.Message, []byte, error) {
			rec.RecordError("kafka_replay")
		},
	})
	return consumer, nil
}

// ProvideApp creates the application server. Resources shared across
// components are closed by the app after the queues stopped.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	set *queues.Set,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	replay pkgkafka.MessageHandler,
	limiter *ratelimit.Limiter,
	c cache.Service,
	producer *pkgkafka.Producer,
) *server.App {
	closers := []server.Closer{{Name: "cache", Close: c.Close}}
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka producer", Close: producer.Close})
	}
	return server.New(cfg, lgr, set.Registry, httpServer, consumer, replay, limiter, closers...)
}
