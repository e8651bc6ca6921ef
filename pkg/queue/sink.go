package queue

import (
	"context"
	"errors"

	"Socially/pkg/logger"
)

// DeadLetterSink is notified once for every job that becomes dead.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl *DeadLetter) error
}

// LogSink records dead letters in the application log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) DeadLetter(_ context.Context, dl *DeadLetter) error {
	s.log.Error("job moved to dead letters",
		logger.Queue(dl.Job.Queue),
		logger.Job(dl.Job.Name),
		logger.JobID(dl.Job.ID),
		logger.Attempt(dl.Job.Attempts),
		logger.String("last_error", dl.Error),
	)
	return nil
}

// MultiSink fans a dead letter out to every sink and joins their errors.
type MultiSink []DeadLetterSink

func (m MultiSink) DeadLetter(ctx context.Context, dl *DeadLetter) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.DeadLetter(ctx, dl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
