package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"Socially/internal/service/ratelimit"
	"Socially/pkg/config"
	xhttp "Socially/pkg/http"
	pkgkafka "Socially/pkg/kafka"
	"Socially/pkg/logger"
	"Socially/pkg/queue"
)

// Closer is a resource released after everything else stopped.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	root       *logger.Logger
	logger     *logger.Logger
	queues     *queue.Registry
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	replay     pkgkafka.MessageHandler
	limiter    *ratelimit.Limiter
	closers    []Closer

	pruneEvery time.Duration
}

// New creates a new App instance with all dependencies. consumer and replay
// are nil when Kafka is disabled.
func New(
	cfg *config.Config,
	lgr *logger.Logger,
	queues *queue.Registry,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	replay pkgkafka.MessageHandler,
	limiter *ratelimit.Limiter,
	closers ...Closer,
) *App {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &App{
		cfg:        cfg,
		root:       lgr,
		logger:     lgr.Named("app"),
		queues:     queues,
		httpServer: httpServer,
		consumer:   consumer,
		replay:     replay,
		limiter:    limiter,
		closers:    closers,
		pruneEvery: time.Minute,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	go a.pruneLimiter(ctx)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	if err := a.queues.Start(ctx); err != nil {
		return fmt.Errorf("start queues: %w", err)
	}
	a.logger.Info("queues started", logger.Any("processors", a.queues.Audit()))

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http: %w", err)
	}

	if a.consumer != nil && a.replay != nil {
		a.consumer.RegisterHandler(a.replay)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.logger.Info("kafka consumer started", logger.String("topic", a.replay.Topic()))
	}
	return nil
}

func (a *App) pruneLimiter(ctx context.Context) {
	if a.limiter == nil {
		return
	}
	ticker := time.NewTicker(a.pruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(); n > 0 {
				a.logger.Debug("rate limiter pruned", logger.Int("buckets", n))
			}
		}
	}
}

// shutdown stops intake first, then the workers, then the shared clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", logger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.queues.Stop(ctx); err != nil {
		a.logger.Warn("queue stop error", logger.Error(err))
		errs = append(errs, err)
	}

	// the logger may publish through one of the closers
	a.root.RemoveCollector()

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", logger.String("resource", c.Name), logger.Error(err))
			errs = append(errs, err)
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
