package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"Socially/pkg/logger"
)

// processor is a registered handler plus its slot wake-up channel. Each of
// its concurrency slots holds at most one active job.
type processor struct {
	name        string
	concurrency int
	handler     Handler
	wake        chan struct{}
}

func newProcessor(name string, concurrency int, handler Handler) *processor {
	return &processor{
		name:        name,
		concurrency: concurrency,
		handler:     handler,
		wake:        make(chan struct{}, concurrency),
	}
}

// notify wakes one idle slot without blocking.
func (p *processor) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start connects to the broker and launches the slots of every registered
// processor plus the queue's scheduler loop. ctx bounds the connection check
// only; jobs keep running until Stop.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("%w: queue %s is closed", ErrQueueUnavailable, q.name)
	}
	if q.running {
		return fmt.Errorf("queue %s already running", q.name)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.broker.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: queue %s: ping broker: %w", ErrQueueUnavailable, q.name, err)
	}

	q.running = true
	q.stopCh = make(chan struct{})
	q.baseCtx = context.WithoutCancel(ctx)

	for _, name := range q.order {
		q.launchLocked(q.processors[name])
	}

	q.wg.Add(1)
	go q.scheduler()

	q.logger.Info("queue started",
		logger.Int("processors", len(q.order)),
		logger.Duration("stall_timeout", q.lease),
		logger.Int("max_attempts", q.retry.MaxAttempts))
	return nil
}

// Stop stops dequeuing, waits for in-flight handlers to finish and closes the
// broker connection. Jobs still waiting stay in the broker.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	wasRunning := q.running
	q.running = false
	if wasRunning {
		close(q.stopCh)
	}
	q.mu.Unlock()

	if wasRunning {
		q.logger.Info("stopping queue...")
		doneCh := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(doneCh)
		}()

		select {
		case <-ctx.Done():
			q.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
			return fmt.Errorf("queue %s: timeout: %w", q.name, ctx.Err())
		case <-doneCh:
		}
	}

	if err := q.broker.Close(); err != nil {
		return fmt.Errorf("queue %s: close broker: %w", q.name, err)
	}
	q.logger.Info("queue stopped gracefully")
	return nil
}

func (q *Queue) launchLocked(p *processor) {
	for i := 0; i < p.concurrency; i++ {
		q.wg.Add(1)
		go q.slot(p, i, q.stopCh)
	}
}

func (q *Queue) slot(p *processor, id int, stopCh <-chan struct{}) {
	defer q.wg.Done()

	idle := time.NewTimer(q.pollInterval)
	defer idle.Stop()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		job, err := q.broker.Reserve(q.baseCtx, p.name, q.lease)
		if err != nil {
			q.logger.Error("reserve failed", logger.Job(p.name), logger.Int("slot", id), logger.Error(err))
		}
		if job != nil {
			q.execute(p, job)
			continue
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(q.pollInterval)

		select {
		case <-stopCh:
			return
		case <-p.wake:
		case <-idle.C:
		}
	}
}

func (q *Queue) execute(p *processor, job *Job) {
	log := q.logger.Named(p.name)
	q.observer.JobStarted(q.name, p.name)

	start := time.Now()
	err := q.invoke(p, job)
	elapsed := time.Since(start)
	q.observer.JobFinished(q.name, p.name)

	if err != nil {
		q.fail(job, err)
		return
	}

	acked, err := q.broker.Ack(q.baseCtx, job)
	switch {
	case err != nil:
		log.Error("ack failed", logger.JobID(job.ID), logger.Error(err))
	case !acked:
		log.Warn("job finished after its lease was reclaimed",
			logger.JobID(job.ID), logger.Duration("elapsed", elapsed))
	default:
		q.observer.JobCompleted(q.name, p.name, elapsed)
		log.Debug("job completed", logger.JobID(job.ID), logger.Duration("elapsed", elapsed))
	}
}

// invoke runs the handler, turning a panic into an error.
func (q *Queue) invoke(p *processor, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("processor panicked",
				logger.Job(p.name),
				logger.JobID(job.ID),
				logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler(q.baseCtx, job.Payload)
}

// fail records a failed attempt and either schedules the job again after
// its backoff delay or moves it to the dead letters.
func (q *Queue) fail(job *Job, cause error) {
	job.Attempts++
	job.LastError = cause.Error()

	failure := &ProcessorFailure{
		Queue:   q.name,
		Name:    job.Name,
		JobID:   job.ID,
		Attempt: job.Attempts,
		Err:     cause,
	}
	log := q.logger.Named(job.Name)

	if job.Attempts < q.retry.MaxAttempts {
		delay := q.retry.Backoff.Delay(job.Attempts)
		ok, err := q.broker.Retry(q.baseCtx, job, time.Now().Add(delay))
		if err != nil {
			log.Error("schedule retry failed", logger.JobID(job.ID), logger.Error(err))
			return
		}
		if !ok {
			log.Warn("retry skipped: lease lost", logger.JobID(job.ID))
			return
		}
		q.observer.JobFailed(q.name, job.Name, job.Attempts, delay)
		log.Warn("job failed, retry scheduled",
			logger.JobID(job.ID),
			logger.Attempt(job.Attempts),
			logger.Duration("retry_in", delay),
			logger.Error(failure))
		return
	}

	job.DiedAt = time.Now().UTC()
	ok, err := q.broker.Bury(q.baseCtx, job)
	if err != nil {
		log.Error("bury failed", logger.JobID(job.ID), logger.Error(err))
		return
	}
	if !ok {
		log.Warn("bury skipped: lease lost", logger.JobID(job.ID))
		return
	}

	q.observer.JobDead(q.name, job.Name)
	dl := &DeadLetter{Job: job, Error: job.LastError, FailedAt: job.DiedAt, Err: failure}
	if err := q.sink.DeadLetter(q.baseCtx, dl); err != nil {
		log.Error("dead letter sink failed", logger.JobID(job.ID), logger.Error(err))
	}
}

// scheduler promotes due retries and reclaims stalled jobs on every tick.
func (q *Queue) scheduler() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.schedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.tick(time.Now())
		}
	}
}

func (q *Queue) tick(now time.Time) {
	q.mu.RLock()
	procs := make([]*processor, 0, len(q.order))
	for _, name := range q.order {
		procs = append(procs, q.processors[name])
	}
	q.mu.RUnlock()

	for _, p := range procs {
		n, err := q.broker.PromoteDue(q.baseCtx, p.name, now, q.batchSize)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				q.logger.Error("promote delayed jobs failed", logger.Job(p.name), logger.Error(err))
			}
		}
		for i := 0; i < n && i < p.concurrency; i++ {
			p.notify()
		}

		stalled, err := q.broker.ClaimStalled(q.baseCtx, p.name, now, q.lease, q.batchSize)
		if err != nil {
			q.logger.Error("claim stalled jobs failed", logger.Job(p.name), logger.Error(err))
			continue
		}
		for _, job := range stalled {
			q.logger.Warn("job stalled", logger.Job(p.name), logger.JobID(job.ID), logger.Attempt(job.Attempts+1))
			q.fail(job, ErrStalled)
		}
	}
}
