package queue

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type failure struct {
	attempt int
	delay   time.Duration
}

// observerCounts is a copy of what recordingObserver saw, safe to print.
type observerCounts struct {
	enqueued      int
	enqueueFailed int
	started       int
	finished      int
	completed     int
	failures      []failure
	dead          int
}

type recordingObserver struct {
	mu sync.Mutex
	c  observerCounts
}

func (o *recordingObserver) record(f func(c *observerCounts)) {
	o.mu.Lock()
	f(&o.c)
	o.mu.Unlock()
}

func (o *recordingObserver) JobEnqueued(string, string) {
	o.record(func(c *observerCounts) { c.enqueued++ })
}

func (o *recordingObserver) EnqueueFailed(string, string) {
	o.record(func(c *observerCounts) { c.enqueueFailed++ })
}

func (o *recordingObserver) JobStarted(string, string) {
	o.record(func(c *observerCounts) { c.started++ })
}

func (o *recordingObserver) JobFinished(string, string) {
	o.record(func(c *observerCounts) { c.finished++ })
}

func (o *recordingObserver) JobCompleted(string, string, time.Duration) {
	o.record(func(c *observerCounts) { c.completed++ })
}

func (o *recordingObserver) JobFailed(_ string, _ string, attempt int, delay time.Duration) {
	o.record(func(c *observerCounts) { c.failures = append(c.failures, failure{attempt: attempt, delay: delay}) })
}

func (o *recordingObserver) JobDead(string, string) {
	o.record(func(c *observerCounts) { c.dead++ })
}

func (o *recordingObserver) snapshot() observerCounts {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.c
	c.failures = append([]failure(nil), o.c.failures...)
	return c
}

type recordingSink struct {
	mu      sync.Mutex
	letters []*DeadLetter
}

func (s *recordingSink) DeadLetter(_ context.Context, dl *DeadLetter) error {
	s.mu.Lock()
	s.letters = append(s.letters, dl)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.letters)
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *MemoryBroker) {
	t.Helper()
	broker := NewMemoryBroker("test", 0)
	base := []Option{
		WithPollInterval(5 * time.Millisecond),
		WithSchedulerInterval(5 * time.Millisecond),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Backoff: Constant{Interval: time.Millisecond}}),
	}
	q := NewQueue("test", broker, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q, broker
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type emailPayload struct {
	Template      string `json:"template"`
	ReceiverEmail string `json:"receiverEmail"`
	Subject       string `json:"subject"`
}

func TestAddJobDeliversPayloadUnchanged(t *testing.T) {
	q, _ := newTestQueue(t)
	got := make(chan emailPayload, 1)
	q.MustProcess("send", 1, Typed(func(_ context.Context, p *emailPayload) error {
		got <- *p
		return nil
	}))
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := emailPayload{Template: "<html><b>hi</b> &amp; bye</html>", ReceiverEmail: "a@b.com", Subject: "Reset your password"}
	job, err := q.AddJob(context.Background(), "send", want)
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if job.ID == "" || job.Queue != "test" || job.Name != "send" || job.Attempts != 0 {
		t.Fatalf("unexpected job %+v", job)
	}

	select {
	case p := <-got:
		if !reflect.DeepEqual(p, want) {
			t.Fatalf("payload changed in transit: got %+v want %+v", p, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestConcurrencyIsBoundedPerJobName(t *testing.T) {
	q, _ := newTestQueue(t)

	const limit = 3
	var active, peak int32
	var done sync.WaitGroup
	q.MustProcess("work", limit, func(context.Context, json.RawMessage) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		done.Done()
		return nil
	})

	const jobs = 20
	done.Add(jobs)
	for i := 0; i < jobs; i++ {
		if _, err := q.AddJob(context.Background(), "work", i); err != nil {
			t.Fatalf("add job: %v", err)
		}
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs did not finish")
	}

	if p := atomic.LoadInt32(&peak); p > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", p, limit)
	}
}

func TestFIFOWithinJobName(t *testing.T) {
	q, _ := newTestQueue(t)

	var mu sync.Mutex
	var order []int
	q.MustProcess("ordered", 1, Typed(func(_ context.Context, n *int) error {
		mu.Lock()
		order = append(order, *n)
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		if _, err := q.AddJob(context.Background(), "ordered", i); err != nil {
			t.Fatalf("add job: %v", err)
		}
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 10
	})
	for i, n := range order {
		if n != i {
			t.Fatalf("out of order: %v", order)
		}
	}
}

func TestProcessRejectsDuplicateAndKeepsFirst(t *testing.T) {
	q, _ := newTestQueue(t)

	var first, second int32
	if err := q.Process("job", 2, func(context.Context, json.RawMessage) error {
		atomic.AddInt32(&first, 1)
		return nil
	}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	err := q.Process("job", 5, func(context.Context, json.RawMessage) error {
		atomic.AddInt32(&second, 1)
		return nil
	})
	if !errors.Is(err, ErrDuplicateProcessor) {
		t.Fatalf("expected ErrDuplicateProcessor, got %v", err)
	}

	procs := q.Processors()
	if len(procs) != 1 || procs[0].Concurrency != 2 {
		t.Fatalf("first registration not intact: %+v", procs)
	}

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AddJob(context.Background(), "job", nil); err != nil {
		t.Fatalf("add job: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&first) == 1 })
	if atomic.LoadInt32(&second) != 0 {
		t.Fatal("second handler should never run")
	}
}

func TestMustProcessPanicsOnDuplicate(t *testing.T) {
	q, _ := newTestQueue(t)
	q.MustProcess("job", 1, func(context.Context, json.RawMessage) error { return nil })

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrDuplicateProcessor) {
			t.Fatalf("expected duplicate processor panic, got %v", r)
		}
	}()
	q.MustProcess("job", 1, func(context.Context, json.RawMessage) error { return nil })
}

func TestProcessValidatesArguments(t *testing.T) {
	q, _ := newTestQueue(t)
	if err := q.Process("job", 0, func(context.Context, json.RawMessage) error { return nil }); !errors.Is(err, ErrInvalidConcurrency) {
		t.Fatalf("expected ErrInvalidConcurrency, got %v", err)
	}
	if err := q.Process("job", 1, nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}

func TestAddJobFailsWhenBrokerDown(t *testing.T) {
	obs := &recordingObserver{}
	q, broker := newTestQueue(t, WithObserver(obs))
	broker.SetAvailable(false)

	_, err := q.AddJob(context.Background(), "send", map[string]string{"a": "b"})
	if !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrBrokerDown) {
		t.Fatalf("expected cause to be kept, got %v", err)
	}
	if s := obs.snapshot(); s.enqueueFailed != 1 || s.enqueued != 0 {
		t.Fatalf("unexpected observer counts %+v", s)
	}
	if q.Enqueued() != 0 {
		t.Fatalf("failed enqueue counted as pending")
	}
}

func TestStartFailsWhenBrokerDown(t *testing.T) {
	q, broker := newTestQueue(t)
	broker.SetAvailable(false)
	if err := q.Start(context.Background()); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
}

func TestUnregisteredPolicies(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		q, _ := newTestQueue(t, WithUnregisteredPolicy(UnregisteredReject))
		if _, err := q.AddJob(context.Background(), "nobody", 1); !errors.Is(err, ErrNoProcessor) {
			t.Fatalf("expected ErrNoProcessor, got %v", err)
		}
	})

	t.Run("backlog", func(t *testing.T) {
		q, broker := newTestQueue(t)
		if err := q.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := q.AddJob(context.Background(), "later", 1); err != nil {
			t.Fatalf("add job: %v", err)
		}
		s, _ := broker.Stats(context.Background(), "later")
		if s.Waiting != 1 {
			t.Fatalf("expected job to wait, got %+v", s)
		}

		ran := make(chan struct{}, 1)
		q.MustProcess("later", 1, func(context.Context, json.RawMessage) error {
			ran <- struct{}{}
			return nil
		})
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("backlogged job not processed after registration")
		}
	})
}

func TestFailingJobDiesAfterMaxAttempts(t *testing.T) {
	obs := &recordingObserver{}
	sink := &recordingSink{}
	const max = 4
	q, broker := newTestQueue(t,
		WithObserver(obs),
		WithDeadLetterSink(sink),
		WithRetryPolicy(RetryPolicy{MaxAttempts: max, Backoff: Linear{Step: 2 * time.Millisecond}}),
	)

	var calls int32
	q.MustProcess("send", 1, func(context.Context, json.RawMessage) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("transport rejected")
	})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AddJob(context.Background(), "send", emailPayload{ReceiverEmail: "a@b.com"}); err != nil {
		t.Fatalf("add job: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return sink.count() == 1 })
	// give a wrongly re-enqueued job a chance to run again
	time.Sleep(30 * time.Millisecond)

	if n := atomic.LoadInt32(&calls); n != max {
		t.Fatalf("expected %d invocations, got %d", max, n)
	}

	s := obs.snapshot()
	if len(s.failures) != max-1 {
		t.Fatalf("expected %d re-enqueues, got %+v", max-1, s.failures)
	}
	for i, f := range s.failures {
		if f.attempt != i+1 {
			t.Fatalf("attempts not strictly increasing: %+v", s.failures)
		}
		if i > 0 && f.delay <= s.failures[i-1].delay {
			t.Fatalf("backoff not increasing: %+v", s.failures)
		}
	}
	if s.dead != 1 || s.completed != 0 {
		t.Fatalf("unexpected observer counts %+v", s)
	}

	dead, err := broker.DeadLetters(context.Background(), 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Attempts != max || dead[0].LastError != "transport rejected" {
		t.Fatalf("unexpected dead letters %+v", dead)
	}
	if dead[0].DiedAt.IsZero() || !sink.letters[0].FailedAt.Equal(dead[0].DiedAt) {
		t.Fatalf("dead job should record when it died: %v vs %v", dead[0].DiedAt, sink.letters[0].FailedAt)
	}
	var pf *ProcessorFailure
	if !errors.As(sink.letters[0].Err, &pf) || pf.Attempt != max {
		t.Fatalf("dead letter should carry the processor failure, got %v", sink.letters[0].Err)
	}

	st, _ := broker.Stats(context.Background(), "send")
	if st.Waiting != 0 || st.Delayed != 0 || st.Active != 0 || st.Dead != 1 {
		t.Fatalf("unexpected broker stats %+v", st)
	}
}

func TestPanickingHandlerIsRetried(t *testing.T) {
	obs := &recordingObserver{}
	q, _ := newTestQueue(t, WithObserver(obs))

	var calls int32
	q.MustProcess("flaky", 1, func(context.Context, json.RawMessage) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return nil
	})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AddJob(context.Background(), "flaky", nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return obs.snapshot().completed == 1 })
	if s := obs.snapshot(); len(s.failures) != 1 || s.failures[0].attempt != 1 {
		t.Fatalf("expected one recorded failure, got %+v", s.failures)
	}
}

func TestStalledJobIsReclaimedAndRetried(t *testing.T) {
	obs := &recordingObserver{}
	q, broker := newTestQueue(t, WithObserver(obs), WithStallTimeout(20*time.Millisecond))

	release := make(chan struct{})
	var calls int32
	q.MustProcess("slow", 2, func(context.Context, json.RawMessage) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
		return nil
	})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AddJob(context.Background(), "slow", nil); err != nil {
		t.Fatalf("add job: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return obs.snapshot().completed == 1 })
	close(release)

	s := obs.snapshot()
	if len(s.failures) != 1 || s.failures[0].attempt != 1 {
		t.Fatalf("expected stall to count as one failure, got %+v", s.failures)
	}

	// the original holder finishes late; its ack must not count
	time.Sleep(20 * time.Millisecond)
	st, _ := broker.Stats(context.Background(), "slow")
	if st.Completed != 1 || st.Active != 0 {
		t.Fatalf("unexpected broker stats %+v", st)
	}
	if obs.snapshot().completed != 1 {
		t.Fatal("late ack was counted as a completion")
	}
}

func TestStopWaitsForInFlightJobs(t *testing.T) {
	q, broker := newTestQueue(t)

	started := make(chan struct{})
	var finished int32
	q.MustProcess("long", 1, func(context.Context, json.RawMessage) error {
		close(started)
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return nil
	})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AddJob(context.Background(), "long", nil); err != nil {
		t.Fatalf("add job: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Fatal("stop returned before the in-flight job finished")
	}

	if _, err := q.AddJob(context.Background(), "long", nil); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable after stop, got %v", err)
	}
	if err := broker.Ping(context.Background()); err == nil {
		t.Fatal("broker should be closed after stop")
	}
}

func TestStopTimesOut(t *testing.T) {
	q, _ := newTestQueue(t)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	q.MustProcess("stuck", 1, func(context.Context, json.RawMessage) error {
		close(started)
		<-release
		return nil
	})
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := q.AddJob(context.Background(), "stuck", nil); err != nil {
		t.Fatalf("add job: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
