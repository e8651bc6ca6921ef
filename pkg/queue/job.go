package queue

import (
	"context"
	"encoding/json"
	"time"
)

// State is the lifecycle state of a job inside the broker.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDead      State = "dead"
)

// Job is one unit of enqueued work. Everything except Attempts, LastError and
// DiedAt is fixed at enqueue time.
type Job struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	LastError string          `json:"last_error,omitempty"`
	DiedAt    time.Time       `json:"died_at,omitzero"`

	// lease identifies the reservation this copy was handed out under.
	lease string
}

func (j *Job) clone() *Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	return &c
}

// Handler performs a job's side effect. It receives only the payload; a
// returned error (or a panic) is the only failure signal.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Typed adapts a handler over a concrete payload type.
func Typed[T any](fn func(ctx context.Context, payload *T) error) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		p, err := ParsePayload[T](raw)
		if err != nil {
			return err
		}
		return fn(ctx, p)
	}
}

// Stats is a point-in-time view of one (queue, job name) pair.
type Stats struct {
	Queue     string `json:"queue"`
	Name      string `json:"name"`
	Waiting   int64  `json:"waiting"`
	Active    int64  `json:"active"`
	Delayed   int64  `json:"delayed"`
	Completed int64  `json:"completed"`
	Dead      int64  `json:"dead"`
}
