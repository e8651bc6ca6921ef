package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Socially/pkg/logger"

	"github.com/google/uuid"
)

// UnregisteredPolicy decides what AddJob does for a job name without a processor.
type UnregisteredPolicy string

const (
	// UnregisteredBacklog accepts the job; it waits in the broker until a processor is registered.
	UnregisteredBacklog UnregisteredPolicy = "backlog"
	// UnregisteredReject fails AddJob with ErrNoProcessor.
	UnregisteredReject UnregisteredPolicy = "reject"
)

const (
	defaultLease             = time.Minute
	defaultPollInterval      = time.Second
	defaultSchedulerInterval = time.Second
	defaultBatchSize         = 100
)

// Queue is one named channel of jobs. It carries the producer API and the
// processor registrations; the worker runtime lives in worker.go.
type Queue struct {
	name     string
	broker   Broker
	logger   *logger.Logger
	observer Observer
	sink     DeadLetterSink
	retry    RetryPolicy

	lease             time.Duration
	pollInterval      time.Duration
	schedulerInterval time.Duration
	batchSize         int
	unregistered      UnregisteredPolicy

	mu         sync.RWMutex
	processors map[string]*processor
	order      []string
	running    bool
	closed     bool
	stopCh     chan struct{}
	baseCtx    context.Context
	wg         sync.WaitGroup

	enqueued atomic.Int64
}

// Option configures a Queue.
type Option func(*Queue)

func WithLogger(l *logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.observer = o
		}
	}
}

// WithDeadLetterSink adds a sink next to the always-present log sink.
func WithDeadLetterSink(s DeadLetterSink) Option {
	return func(q *Queue) {
		if s != nil {
			q.sink = s
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(q *Queue) {
		if p.MaxAttempts > 0 {
			q.retry.MaxAttempts = p.MaxAttempts
		}
		if p.Backoff != nil {
			q.retry.Backoff = p.Backoff
		}
	}
}

// WithStallTimeout sets how long a job may stay active before it is
// reclaimed and failed with ErrStalled.
func WithStallTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// WithPollInterval sets how long an idle slot sleeps before checking the broker again.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithSchedulerInterval sets how often delayed jobs are promoted and stalled jobs reclaimed.
func WithSchedulerInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.schedulerInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

func WithUnregisteredPolicy(p UnregisteredPolicy) Option {
	return func(q *Queue) {
		if p == UnregisteredReject || p == UnregisteredBacklog {
			q.unregistered = p
		}
	}
}

// NewQueue creates a queue over a broker dedicated to it.
func NewQueue(name string, broker Broker, opts ...Option) *Queue {
	q := &Queue{
		name:              name,
		broker:            broker,
		logger:            logger.Nop(),
		observer:          NopObserver{},
		retry:             DefaultRetryPolicy(),
		lease:             defaultLease,
		pollInterval:      defaultPollInterval,
		schedulerInterval: defaultSchedulerInterval,
		batchSize:         defaultBatchSize,
		unregistered:      UnregisteredBacklog,
		processors:        make(map[string]*processor),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.Named("queue." + name)
	logSink := NewLogSink(q.logger)
	if q.sink == nil {
		q.sink = logSink
	} else {
		q.sink = MultiSink{logSink, q.sink}
	}
	return q
}

func (q *Queue) Name() string { return q.name }

// Broker exposes the underlying broker for inspection.
func (q *Queue) Broker() Broker { return q.broker }

// Enqueued is the number of jobs this process has added to the queue.
func (q *Queue) Enqueued() int64 { return q.enqueued.Load() }

// AddJob durably enqueues a job and returns without waiting for it to run.
// Broker failures are logged and returned wrapped in ErrQueueUnavailable.
func (q *Queue) AddJob(ctx context.Context, name string, payload any) (*Job, error) {
	q.mu.RLock()
	closed := q.closed
	p, registered := q.processors[name]
	q.mu.RUnlock()

	if closed {
		q.observer.EnqueueFailed(q.name, name)
		return nil, fmt.Errorf("%w: queue %s is closed", ErrQueueUnavailable, q.name)
	}
	if !registered && q.unregistered == UnregisteredReject {
		q.observer.EnqueueFailed(q.name, name)
		return nil, fmt.Errorf("%w: %s/%s", ErrNoProcessor, q.name, name)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s payload: %w", q.name, name, err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Queue:     q.name,
		Name:      name,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}

	if err := q.broker.Push(ctx, job); err != nil {
		q.logger.Error("enqueue failed", logger.Job(name), logger.JobID(job.ID), logger.Error(err))
		q.observer.EnqueueFailed(q.name, name)
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrQueueUnavailable, q.name, name, err)
	}

	q.enqueued.Add(1)
	q.observer.JobEnqueued(q.name, name)
	q.logger.Debug("job enqueued", logger.Job(name), logger.JobID(job.ID))
	if registered {
		p.notify()
	}
	return job, nil
}

// ProcessorInfo describes one registered processor.
type ProcessorInfo struct {
	Name        string `json:"name"`
	Concurrency int    `json:"concurrency"`
}

// Process registers the handler for a job name. A job name can be
// registered once per queue; later attempts fail with ErrDuplicateProcessor
// and leave the first registration in place. Registering on a running queue
// starts the processor's slots immediately.
func (q *Queue) Process(name string, concurrency int, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%s/%s: %w", q.name, name, ErrNilHandler)
	}
	if concurrency < 1 {
		return fmt.Errorf("%s/%s: %w (got %d)", q.name, name, ErrInvalidConcurrency, concurrency)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.processors[name]; exists {
		return fmt.Errorf("%s/%s: %w", q.name, name, ErrDuplicateProcessor)
	}

	p := newProcessor(name, concurrency, handler)
	q.processors[name] = p
	q.order = append(q.order, name)

	q.logger.Info("processor registered", logger.Job(name), logger.Int("concurrency", concurrency))

	if q.running {
		q.launchLocked(p)
	}
	return nil
}

// MustProcess is Process for startup wiring; it panics on error.
func (q *Queue) MustProcess(name string, concurrency int, handler Handler) {
	if err := q.Process(name, concurrency, handler); err != nil {
		panic(err)
	}
}

// Processors lists registrations in the order they were made.
func (q *Queue) Processors() []ProcessorInfo {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]ProcessorInfo, 0, len(q.order))
	for _, name := range q.order {
		out = append(out, ProcessorInfo{Name: name, Concurrency: q.processors[name].concurrency})
	}
	return out
}

// Stats reports broker counts for every registered job name.
func (q *Queue) Stats(ctx context.Context) ([]Stats, error) {
	infos := q.Processors()
	out := make([]Stats, 0, len(infos))
	for _, info := range infos {
		s, err := q.broker.Stats(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("%s/%s stats: %w", q.name, info.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// DeadLetters returns the newest dead jobs on this queue.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]*Job, error) {
	return q.broker.DeadLetters(ctx, limit)
}
