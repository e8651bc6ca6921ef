package queue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueUnavailable is returned by AddJob when the broker did not accept the job.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrDuplicateProcessor is returned when a job name already has a processor on the queue.
	ErrDuplicateProcessor = errors.New("duplicate processor")
	// ErrInvalidConcurrency is returned for a concurrency below 1.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrNilHandler is returned when Process is called without a handler.
	ErrNilHandler = errors.New("nil handler")
	// ErrNoProcessor is returned by AddJob under UnregisteredReject.
	ErrNoProcessor = errors.New("no processor registered")
	// ErrDuplicateQueue is returned when a registry already holds a queue name.
	ErrDuplicateQueue = errors.New("duplicate queue")
	// ErrStalled marks a job whose lease expired before its handler resolved.
	ErrStalled = errors.New("job stalled: lease expired")
	// ErrBrokerDown is returned by brokers that cannot reach their backend.
	ErrBrokerDown = errors.New("broker down")
)

// ProcessorFailure wraps an error returned (or panicked) by a handler.
type ProcessorFailure struct {
	Queue   string
	Name    string
	JobID   string
	Attempt int
	Err     error
}

func (e *ProcessorFailure) Error() string {
	return fmt.Sprintf("%s/%s job %s attempt %d: %v", e.Queue, e.Name, e.JobID, e.Attempt, e.Err)
}

func (e *ProcessorFailure) Unwrap() error { return e.Err }

// DeadLetter describes a job that exhausted its retry budget.
type DeadLetter struct {
	Job      *Job      `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	Err      error     `json:"-"`
}

func (d *DeadLetter) String() string {
	return fmt.Sprintf("%s/%s job %s dead after %d attempts: %s", d.Job.Queue, d.Job.Name, d.Job.ID, d.Job.Attempts, d.Error)
}
