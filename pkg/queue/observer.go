package queue

import "time"

// Observer receives lifecycle events from queues. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	JobEnqueued(queue, name string)
	EnqueueFailed(queue, name string)
	JobStarted(queue, name string)
	// JobFinished pairs with JobStarted once the handler returned, whatever
	// happened to the job afterwards.
	JobFinished(queue, name string)
	JobCompleted(queue, name string, elapsed time.Duration)
	JobFailed(queue, name string, attempt int, retryIn time.Duration)
	JobDead(queue, name string)
}

type NopObserver struct{}

func (NopObserver) JobEnqueued(string, string)                   {}
func (NopObserver) EnqueueFailed(string, string)                 {}
func (NopObserver) JobStarted(string, string)                    {}
func (NopObserver) JobFinished(string, string)                   {}
func (NopObserver) JobCompleted(string, string, time.Duration)   {}
func (NopObserver) JobFailed(string, string, int, time.Duration) {}
func (NopObserver) JobDead(string, string)                       {}

var _ Observer = NopObserver{}
