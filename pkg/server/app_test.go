package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"Socially/internal/service/ratelimit"
	"Socially/pkg/config"
	xhttp "Socially/pkg/http"
	"Socially/pkg/queue"

	"github.com/labstack/echo/v4"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func TestAppLifecycle(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.ShutdownTimeout = 5 * time.Second

	q := queue.NewQueue("email", queue.NewMemoryBroker("email", 10), queue.WithPollInterval(5*time.Millisecond))
	ran := make(chan struct{}, 1)
	q.MustProcess("forgotPasswordEmail", 1, func(context.Context, json.RawMessage) error {
		ran <- struct{}{}
		return nil
	})
	reg := queue.NewRegistry(nil)
	if err := reg.Register(q); err != nil {
		t.Fatalf("register: %v", err)
	}

	srv := xhttp.NewServer(pingHandler{}, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	var closed atomic.Int32
	closer := Closer{Name: "redis", Close: func() error {
		closed.Add(1)
		return errors.New("already closed")
	}}

	app := New(cfg, nil, reg, srv, nil, nil, ratelimit.New(1, 1), closer)
	app.pruneEvery = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	go app.pruneLimiter(ctx)

	if _, err := q.AddJob(context.Background(), "forgotPasswordEmail", map[string]string{"receiverEmail": "a@b.c"}); err != nil {
		t.Fatalf("add job: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not run")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ping status %d", resp.StatusCode)
	}

	if err := app.shutdown(); err == nil {
		t.Fatalf("closer error should be reported")
	}
	if closed.Load() != 1 {
		t.Fatalf("closer ran %d times", closed.Load())
	}
	if _, err := q.AddJob(context.Background(), "forgotPasswordEmail", nil); !errors.Is(err, queue.ErrQueueUnavailable) {
		t.Fatalf("stopped queue accepted a job: %v", err)
	}
}
