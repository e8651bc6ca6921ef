package queues

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"Socially/internal/domain/models"
	"Socially/internal/workers"
	"Socially/pkg/config"
	"Socially/pkg/logger"
	"Socially/pkg/queue"
)

type sent struct{ to, subject, body string }

type fakeTransport struct {
	mu    sync.Mutex
	calls []sent
	err   error
}

func (f *fakeTransport) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{to, subject, body})
	return f.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type delays struct {
	mu     sync.Mutex
	failed []time.Duration
	dead   int
	queue.NopObserver
}

func (d *delays) JobFailed(_, _ string, _ int, retryIn time.Duration) {
	d.mu.Lock()
	d.failed = append(d.failed, retryIn)
	d.mu.Unlock()
}

func (d *delays) JobDead(string, string) {
	d.mu.Lock()
	d.dead++
	d.mu.Unlock()
}

type sinkCount struct {
	mu sync.Mutex
	n  int
}

func (s *sinkCount) DeadLetter(context.Context, *queue.DeadLetter) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
broker:
  driver: memory
  poll_interval: 5ms
  scheduler_interval: 5ms
retry:
  max_attempts: 3
  strategy: linear
  min: 2ms
  max: 1s
`))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func build(t *testing.T, cfg *config.Config, tr *fakeTransport, obs queue.Observer, sink queue.DeadLetterSink) *Set {
	t.Helper()
	deps := Deps{
		Factory:  queue.MemoryBrokerFactory(0),
		Catalog:  NewCatalog(workers.NewEmailWorker(tr, nil), workers.NewUserWorker(nil, nil), workers.NewAuthWorker(nil, nil)),
		Logger:   logger.Nop(),
		Observer: obs,
		Sink:     sink,
	}
	set, err := Build(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := set.Registry.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = set.Registry.Stop(ctx)
	})
	return set
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func emailStats(t *testing.T, set *Set) queue.Stats {
	t.Helper()
	stats, err := set.Email.Queue().Stats(context.Background())
	if err != nil || len(stats) != 1 {
		t.Fatalf("stats: %+v %v", stats, err)
	}
	return stats[0]
}

func TestForgotPasswordEmailIsDeliveredOnce(t *testing.T) {
	tr := &fakeTransport{}
	set := build(t, testConfig(t), tr, nil, nil)

	job := &models.EmailJob{Template: "<html>...</html>", ReceiverEmail: "a@b.com", Subject: "Reset your password"}
	if err := set.Email.AddEmailJob(context.Background(), JobForgotPasswordEmail, job); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return emailStats(t, set).Completed == 1 })
	if tr.count() != 1 {
		t.Fatalf("expected exactly one transport call, got %d", tr.count())
	}
	if tr.calls[0] != (sent{"a@b.com", "Reset your password", "<html>...</html>"}) {
		t.Fatalf("unexpected call %+v", tr.calls[0])
	}
}

func TestFailingTransportEndsDead(t *testing.T) {
	tr := &fakeTransport{err: errors.New("relay down")}
	obs := &delays{}
	sink := &sinkCount{}
	set := build(t, testConfig(t), tr, obs, sink)

	if err := set.Email.AddEmailJob(context.Background(), JobForgotPasswordEmail, &models.EmailJob{ReceiverEmail: "a@b.com"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return emailStats(t, set).Dead == 1 })
	time.Sleep(20 * time.Millisecond)

	if tr.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", tr.count())
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.failed) != 2 || obs.failed[0] >= obs.failed[1] {
		t.Fatalf("expected 2 increasing retry delays, got %v", obs.failed)
	}
	if obs.dead != 1 {
		t.Fatalf("expected one dead event, got %d", obs.dead)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.n != 1 {
		t.Fatalf("expected one dead letter, got %d", sink.n)
	}

	dead, err := set.Email.Queue().DeadLetters(context.Background(), 10)
	if err != nil || len(dead) != 1 || dead[0].Attempts != 3 {
		t.Fatalf("dead letters: %+v %v", dead, err)
	}
}

func TestBuildRegistersAuditedProcessors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queues = []config.QueueConfig{
		{Name: Email, Processors: []config.ProcessorConfig{{Job: JobForgotPasswordEmail, Concurrency: 2}}},
	}
	set := build(t, cfg, &fakeTransport{}, nil, nil)

	want := map[string][]string{
		Email: {JobForgotPasswordEmail},
		User:  {},
		Auth:  {},
	}
	if got := set.Registry.Audit(); !reflect.DeepEqual(got, want) {
		t.Fatalf("audit = %v, want %v", got, want)
	}

	// user has no processor: the job is kept in the broker
	if err := set.User.AddUserJob(context.Background(), JobAddUserToDB, &models.UserJob{Value: &models.User{ID: "u1"}}); err != nil {
		t.Fatal(err)
	}
	s, err := set.User.Queue().Broker().Stats(context.Background(), JobAddUserToDB)
	if err != nil || s.Waiting != 1 {
		t.Fatalf("expected backlog of one, got %+v %v", s, err)
	}
}

func TestBuildRejectsUnknownNames(t *testing.T) {
	deps := Deps{
		Factory: queue.MemoryBrokerFactory(0),
		Catalog: NewCatalog(workers.NewEmailWorker(&fakeTransport{}, nil), workers.NewUserWorker(nil, nil), workers.NewAuthWorker(nil, nil)),
	}

	cfg := testConfig(t)
	cfg.Queues = []config.QueueConfig{{Name: "posts"}}
	if _, err := Build(cfg, deps); err == nil {
		t.Fatal("unknown queue must fail")
	}

	cfg.Queues = []config.QueueConfig{{Name: User, Processors: []config.ProcessorConfig{{Job: "addUserToDb", Concurrency: 1}}}}
	if _, err := Build(cfg, deps); err == nil {
		t.Fatal("unknown job must fail")
	}
}

func TestRejectPolicyFailsUnregisteredJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.Unregistered = "reject"
	set := build(t, cfg, &fakeTransport{}, nil, nil)

	err := set.Email.AddEmailJob(context.Background(), "welcomeEmail", &models.EmailJob{})
	if !errors.Is(err, queue.ErrNoProcessor) {
		t.Fatalf("expected ErrNoProcessor, got %v", err)
	}
}
