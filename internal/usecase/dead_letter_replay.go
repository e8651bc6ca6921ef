package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"Socially/pkg/logger"
	"Socially/pkg/queue"
)

// DeadLetterReplay consumes dead letters pushed back by operators and
// enqueues them again as fresh jobs.
type DeadLetterReplay struct {
	topic    string
	registry *queue.Registry
	logger   *logger.Logger
}

func NewDeadLetterReplay(topic string, registry *queue.Registry, lgr *logger.Logger) *DeadLetterReplay {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &DeadLetterReplay{topic: topic, registry: registry, logger: lgr.Named("replay")}
}

func (h *DeadLetterReplay) Topic() string { return h.topic }

// incoming message schema: queue.DeadLetter as published by the dead-letter sink
func (h *DeadLetterReplay) Handle(ctx context.Context, b []byte) error {
	var dl queue.DeadLetter
	if err := json.Unmarshal(b, &dl); err != nil {
		return fmt.Errorf("decode dead letter: %w", err)
	}
	if dl.Job == nil || dl.Job.Queue == "" || dl.Job.Name == "" {
		return fmt.Errorf("dead letter without job")
	}

	q, ok := h.registry.Queue(dl.Job.Queue)
	if !ok {
		return fmt.Errorf("replay %s: unknown queue", dl.Job.Queue)
	}
	job, err := q.AddJob(ctx, dl.Job.Name, dl.Job.Payload)
	if err != nil {
		return err
	}

	h.logger.Info("dead letter replayed",
		logger.Queue(dl.Job.Queue),
		logger.Job(dl.Job.Name),
		logger.String("dead_job_id", dl.Job.ID),
		logger.JobID(job.ID))
	return nil
}
