package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"Socially/pkg/logger"
)

// Registry holds the process-wide set of queues, one broker connection each.
type Registry struct {
	logger *logger.Logger
	mu     sync.RWMutex
	queues map[string]*Queue
	order  []string
}

func NewRegistry(lgr *logger.Logger) *Registry {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Registry{
		logger: lgr.Named("registry"),
		queues: make(map[string]*Queue),
	}
}

func (r *Registry) Register(q *Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queues[q.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateQueue, q.Name())
	}
	r.queues[q.Name()] = q
	r.order = append(r.order, q.Name())
	return nil
}

func (r *Registry) Queue(name string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	return q, ok
}

// Names returns queue names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) snapshot() []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Queue, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.queues[name])
	}
	return out
}

// Start starts every queue. On failure the queues already started are stopped.
func (r *Registry) Start(ctx context.Context) error {
	var started []*Queue
	for _, q := range r.snapshot() {
		if err := q.Start(ctx); err != nil {
			for _, s := range started {
				if stopErr := s.Stop(ctx); stopErr != nil {
					r.logger.Warn("stop after failed start", logger.Queue(s.Name()), logger.Error(stopErr))
				}
			}
			return err
		}
		started = append(started, q)
	}
	r.logger.Info("queues started", logger.Strings("queues", r.Names()))
	return nil
}

// Stop stops all queues concurrently and joins their errors.
func (r *Registry) Stop(ctx context.Context) error {
	queues := r.snapshot()
	errs := make([]error, len(queues))

	var wg sync.WaitGroup
	for i, q := range queues {
		wg.Add(1)
		go func(i int, q *Queue) {
			defer wg.Done()
			errs[i] = q.Stop(ctx)
		}(i, q)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Stats collects stats for every registered (queue, job name).
func (r *Registry) Stats(ctx context.Context) ([]Stats, error) {
	var out []Stats
	for _, q := range r.snapshot() {
		s, err := q.Stats(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	return out, nil
}

// Audit maps each queue to the job names that have a processor.
func (r *Registry) Audit() map[string][]string {
	out := make(map[string][]string)
	for _, q := range r.snapshot() {
		names := make([]string, 0)
		for _, p := range q.Processors() {
			names = append(names, p.Name)
		}
		sort.Strings(names)
		out[q.Name()] = names
	}
	return out
}
