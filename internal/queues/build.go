package queues

import (
	"fmt"

	"Socially/internal/workers"
	"Socially/pkg/config"
	"Socially/pkg/logger"
	"Socially/pkg/queue"
)

// Key names one processor.
type Key struct {
	Queue string
	Job   string
}

// Catalog is every processor this binary knows how to run. Which of them
// actually run is decided by the configuration.
type Catalog map[Key]queue.Handler

func NewCatalog(email *workers.EmailWorker, user *workers.UserWorker, auth *workers.AuthWorker) Catalog {
	return Catalog{
		{Email, JobForgotPasswordEmail}: queue.Typed(email.SendEmail),
		{User, JobAddUserToDB}:          queue.Typed(user.AddUserToDB),
		{Auth, JobAddAuthUserToDB}:      queue.Typed(auth.AddAuthUserToDB),
	}
}

type Deps struct {
	Factory  queue.BrokerFactory
	Catalog  Catalog
	Logger   *logger.Logger
	Observer queue.Observer
	Sink     queue.DeadLetterSink
}

// Options maps the broker and retry sections onto queue options.
func Options(cfg *config.Config) []queue.Option {
	return []queue.Option{
		queue.WithRetryPolicy(queue.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     queue.NewStrategy(cfg.Retry.Strategy, cfg.Retry.Min, cfg.Retry.Max),
		}),
		queue.WithStallTimeout(cfg.Broker.StallTimeout),
		queue.WithPollInterval(cfg.Broker.PollInterval),
		queue.WithSchedulerInterval(cfg.Broker.SchedulerInterval),
		queue.WithBatchSize(cfg.Broker.BatchSize),
		queue.WithUnregisteredPolicy(queue.UnregisteredPolicy(cfg.Broker.Unregistered)),
	}
}

// Build creates the three queues, each over its own broker, and registers
// exactly the processors listed in cfg.Queues. Unknown queue or job names
// and duplicate registrations are errors.
func Build(cfg *config.Config, deps Deps) (set *Set, err error) {
	lgr := deps.Logger
	if lgr == nil {
		lgr = logger.Nop()
	}

	processors := make(map[string][]config.ProcessorConfig, len(cfg.Queues))
	for _, qc := range cfg.Queues {
		if !known(qc.Name) {
			return nil, fmt.Errorf("queues: unknown queue %q", qc.Name)
		}
		processors[qc.Name] = qc.Processors
	}

	opts := append(Options(cfg),
		queue.WithLogger(lgr),
		queue.WithObserver(deps.Observer),
		queue.WithDeadLetterSink(deps.Sink),
	)

	reg := queue.NewRegistry(lgr)
	built := make(map[string]*queue.Queue, 3)
	var brokers []queue.Broker
	defer func() {
		if err != nil {
			for _, b := range brokers {
				_ = b.Close()
			}
		}
	}()

	for _, name := range []string{Email, User, Auth} {
		broker, err := deps.Factory(name)
		if err != nil {
			return nil, fmt.Errorf("queues: broker for %s: %w", name, err)
		}
		brokers = append(brokers, broker)
		q := queue.NewQueue(name, broker, opts...)

		for _, pc := range processors[name] {
			handler, ok := deps.Catalog[Key{name, pc.Job}]
			if !ok {
				return nil, fmt.Errorf("queues: %s has no job %q", name, pc.Job)
			}
			if err := q.Process(pc.Job, pc.Concurrency, handler); err != nil {
				return nil, err
			}
		}
		if len(processors[name]) == 0 {
			lgr.Warn("queue has no processors; jobs will wait in the broker", logger.Queue(name))
		}

		if err := reg.Register(q); err != nil {
			return nil, err
		}
		built[name] = q
	}

	return &Set{
		Registry: reg,
		Email:    &EmailQueue{q: built[Email]},
		User:     &UserQueue{q: built[User]},
		Auth:     &AuthQueue{q: built[Auth]},
	}, nil
}

func known(name string) bool {
	return name == Email || name == User || name == Auth
}
