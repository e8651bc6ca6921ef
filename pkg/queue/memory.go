package queue

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBroker keeps a queue's jobs in process memory. It mirrors the Redis
// broker's semantics and is used for local development and tests; jobs do
// not survive a restart.
type MemoryBroker struct {
	mu        sync.Mutex
	queue     string
	jobs      map[string]*Job
	names     map[string]*memoryList
	dead      []*Job
	retention int
	available bool
	closed    bool
	seq       uint64
}

type memoryList struct {
	wait      *list.List // job ids, front = oldest
	active    map[string]memoryLease
	delayed   map[string]time.Time
	completed int64
	dead      int64
}

type memoryLease struct {
	token    string
	deadline time.Time
}

// NewMemoryBroker creates an empty broker. retention bounds the dead-letter
// list; zero keeps 1000 entries.
func NewMemoryBroker(queueName string, retention int) *MemoryBroker {
	if retention <= 0 {
		retention = 1000
	}
	return &MemoryBroker{
		queue:     queueName,
		jobs:      make(map[string]*Job),
		names:     make(map[string]*memoryList),
		retention: retention,
		available: true,
	}
}

// MemoryBrokerFactory returns a factory producing independent memory brokers.
func MemoryBrokerFactory(retention int) BrokerFactory {
	return func(queueName string) (Broker, error) {
		return NewMemoryBroker(queueName, retention), nil
	}
}

// SetAvailable toggles a simulated outage: while unavailable every call fails with ErrBrokerDown.
func (b *MemoryBroker) SetAvailable(ok bool) {
	b.mu.Lock()
	b.available = ok
	b.mu.Unlock()
}

func (b *MemoryBroker) list(name string) *memoryList {
	l, ok := b.names[name]
	if !ok {
		l = &memoryList{
			wait:    list.New(),
			active:  make(map[string]memoryLease),
			delayed: make(map[string]time.Time),
		}
		b.names[name] = l
	}
	return l
}

func (b *MemoryBroker) check() error {
	if b.closed {
		return fmt.Errorf("memory broker %s: closed", b.queue)
	}
	if !b.available {
		return fmt.Errorf("memory broker %s: %w", b.queue, ErrBrokerDown)
	}
	return nil
}

func (b *MemoryBroker) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.check()
}

func (b *MemoryBroker) Push(_ context.Context, j *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	if _, exists := b.jobs[j.ID]; exists {
		return fmt.Errorf("memory broker %s: job %s already exists", b.queue, j.ID)
	}
	b.jobs[j.ID] = j.clone()
	b.list(j.Name).wait.PushBack(j.ID)
	return nil
}

func (b *MemoryBroker) Reserve(_ context.Context, name string, lease time.Duration) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return nil, err
	}
	l := b.list(name)
	front := l.wait.Front()
	if front == nil {
		return nil, nil
	}
	id := l.wait.Remove(front).(string)
	j, ok := b.jobs[id]
	if !ok {
		return nil, nil
	}
	b.seq++
	token := fmt.Sprintf("%d", b.seq)
	l.active[id] = memoryLease{token: token, deadline: time.Now().Add(lease)}
	out := j.clone()
	out.lease = token
	return out, nil
}

// release drops the active lease for j and reports whether j still held it.
func (b *MemoryBroker) release(j *Job) (*memoryList, bool) {
	l := b.list(j.Name)
	if held, ok := l.active[j.ID]; !ok || held.token != j.lease {
		return l, false
	}
	delete(l.active, j.ID)
	return l, true
}

func (b *MemoryBroker) Ack(_ context.Context, j *Job) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return false, err
	}
	l, held := b.release(j)
	if !held {
		return false, nil
	}
	delete(b.jobs, j.ID)
	l.completed++
	return true, nil
}

func (b *MemoryBroker) Retry(_ context.Context, j *Job, runAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return false, err
	}
	l, held := b.release(j)
	if !held {
		return false, nil
	}
	b.jobs[j.ID] = j.clone()
	l.delayed[j.ID] = runAt
	return true, nil
}

func (b *MemoryBroker) Bury(_ context.Context, j *Job) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return false, err
	}
	l, held := b.release(j)
	if !held {
		return false, nil
	}
	delete(b.jobs, j.ID)
	l.dead++
	if j.DiedAt.IsZero() {
		j.DiedAt = time.Now().UTC()
	}
	b.dead = append([]*Job{j.clone()}, b.dead...)
	if len(b.dead) > b.retention {
		b.dead = b.dead[:b.retention]
	}
	return true, nil
}

func (b *MemoryBroker) PromoteDue(_ context.Context, name string, now time.Time, limit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return 0, err
	}
	l := b.list(name)
	due := dueIDs(l.delayed, func(id string) time.Time { return l.delayed[id] }, now, limit)
	for _, id := range due {
		delete(l.delayed, id)
		l.wait.PushBack(id)
	}
	return len(due), nil
}

func (b *MemoryBroker) ClaimStalled(_ context.Context, name string, now time.Time, lease time.Duration, limit int) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return nil, err
	}
	l := b.list(name)
	stalled := dueIDs(l.active, func(id string) time.Time { return l.active[id].deadline }, now, limit)
	out := make([]*Job, 0, len(stalled))
	for _, id := range stalled {
		j, ok := b.jobs[id]
		if !ok {
			delete(l.active, id)
			continue
		}
		b.seq++
		token := fmt.Sprintf("%d", b.seq)
		l.active[id] = memoryLease{token: token, deadline: now.Add(lease)}
		c := j.clone()
		c.lease = token
		out = append(out, c)
	}
	return out, nil
}

func (b *MemoryBroker) Stats(_ context.Context, name string) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return Stats{}, err
	}
	l := b.list(name)
	return Stats{
		Queue:     b.queue,
		Name:      name,
		Waiting:   int64(l.wait.Len()),
		Active:    int64(len(l.active)),
		Delayed:   int64(len(l.delayed)),
		Completed: l.completed,
		Dead:      l.dead,
	}, nil
}

func (b *MemoryBroker) DeadLetters(_ context.Context, limit int) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(b.dead) {
		limit = len(b.dead)
	}
	out := make([]*Job, 0, limit)
	for _, j := range b.dead[:limit] {
		out = append(out, j.clone())
	}
	return out, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// dueIDs returns up to limit ids with a deadline at or before now, earliest first.
func dueIDs[V any](m map[string]V, at func(id string) time.Time, now time.Time, limit int) []string {
	var due []string
	for id := range m {
		if !at(id).After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, k int) bool { return at(due[i]).Before(at(due[k])) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due
}

var _ Broker = (*MemoryBroker)(nil)
