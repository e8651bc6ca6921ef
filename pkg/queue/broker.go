package queue

import (
	"context"
	"time"
)

// Broker is the durable store behind a single named queue. Jobs are kept in
// one FIFO per job name. Implementations must be safe for concurrent use by
// producers and workers.
type Broker interface {
	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Push appends a job to the tail of its job name's waiting list.
	Push(ctx context.Context, j *Job) error

	// Reserve takes the oldest waiting job of name and leases it until now+lease.
	// It returns (nil, nil) when nothing is waiting.
	Reserve(ctx context.Context, name string, lease time.Duration) (*Job, error)

	// Ack removes a completed job. The boolean is false if the caller no longer
	// held the lease, e.g. because the job was reclaimed as stalled.
	Ack(ctx context.Context, j *Job) (bool, error)

	// Retry stores the updated job and schedules it to become waiting at runAt.
	Retry(ctx context.Context, j *Job, runAt time.Time) (bool, error)

	// Bury moves the job to the queue's dead-letter list, stamping DiedAt
	// when the caller left it zero.
	Bury(ctx context.Context, j *Job) (bool, error)

	// PromoteDue moves delayed jobs whose run time has passed back to waiting.
	PromoteDue(ctx context.Context, name string, now time.Time, limit int) (int, error)

	// ClaimStalled returns active jobs whose lease expired before now and
	// re-leases them to the caller, which must then Retry or Bury them.
	ClaimStalled(ctx context.Context, name string, now time.Time, lease time.Duration, limit int) ([]*Job, error)

	// Stats reports counts for one job name.
	Stats(ctx context.Context, name string) (Stats, error)

	// DeadLetters lists the most recent dead jobs, newest first.
	DeadLetters(ctx context.Context, limit int) ([]*Job, error)

	Close() error
}

// BrokerFactory opens a dedicated broker connection for a queue name.
type BrokerFactory func(queueName string) (Broker, error)
