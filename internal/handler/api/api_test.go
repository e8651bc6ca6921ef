package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Socially/internal/domain/models"
	xhttp "Socially/pkg/http"
	"Socially/pkg/queue"

	"github.com/labstack/echo/v4"
)

type fakePassword struct {
	forgot  []string
	resetIP string
	token   string
	err     error
}

func (f *fakePassword) Forgot(_ context.Context, email string) error {
	f.forgot = append(f.forgot, email)
	return f.err
}

func (f *fakePassword) Reset(_ context.Context, token, _, _, ip string) error {
	f.token, f.resetIP = token, ip
	return f.err
}

type fakeSignup struct{ err error }

func (f *fakeSignup) Create(_ context.Context, req *models.SignupRequest) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "u1", Username: req.Username, Email: req.Email}, nil
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newEcho(hs ...xhttp.Handler) *echo.Echo {
	e := echo.New()
	xhttp.Handlers(hs).RegisterRoutes(e)
	return e
}

func TestForgotPasswordEndpoint(t *testing.T) {
	pw := &fakePassword{}
	e := newEcho(NewAuthHandler(nil, pw, &fakeSignup{}))

	rec := serve(e, http.MethodPost, "/api/v1/forgot-password", `{"email":"manny@me.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if len(pw.forgot) != 1 || pw.forgot[0] != "manny@me.com" {
		t.Fatalf("unexpected calls %v", pw.forgot)
	}

	rec = serve(e, http.MethodPost, "/api/v1/forgot-password", `{"email":"not-an-email"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pw.forgot) != 1 {
		t.Fatalf("invalid request reached the service")
	}
}

func TestForgotPasswordQueueDown(t *testing.T) {
	pw := &fakePassword{err: xhttp.ServiceUnavailableError("Email could not be queued").WithRetryAfter(1500 * time.Millisecond)}
	e := newEcho(NewAuthHandler(nil, pw, &fakeSignup{}))

	rec := serve(e, http.MethodPost, "/api/v1/forgot-password", `{"email":"manny@me.com"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q, want rounded up to 2", got)
	}
}

func TestResetPasswordEndpoint(t *testing.T) {
	pw := &fakePassword{}
	e := newEcho(NewAuthHandler(nil, pw, &fakeSignup{}))

	rec := serve(e, http.MethodPost, "/api/v1/reset-password/abc123", `{"password":"qwer","confirmPassword":"qwer"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if pw.token != "abc123" || pw.resetIP != "10.0.0.7" {
		t.Fatalf("token %q ip %q", pw.token, pw.resetIP)
	}

	rec = serve(e, http.MethodPost, "/api/v1/reset-password/abc123", `{"password":"qwer","confirmPassword":"qwex"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on mismatch, got %d", rec.Code)
	}
}

func TestSignupEndpoint(t *testing.T) {
	e := newEcho(NewAuthHandler(nil, &fakePassword{}, &fakeSignup{}))

	rec := serve(e, http.MethodPost, "/api/v1/signup", `{"username":"manny","email":"m@me.com","password":"qwerty","avatarColor":"red"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data models.SignupResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.User == nil || resp.Data.User.ID != "u1" {
		t.Fatalf("unexpected body %s", rec.Body)
	}

	rec = serve(e, http.MethodPost, "/api/v1/signup", `{"username":"m!","email":"m@me.com","password":"qwerty","avatarColor":"red"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueueEndpoints(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker("email", 10)
	q := queue.NewQueue("email", broker)
	q.MustProcess("forgotPasswordEmail", 1, func(context.Context, json.RawMessage) error { return nil })
	reg := queue.NewRegistry(nil)
	if err := reg.Register(q); err != nil {
		t.Fatalf("register: %v", err)
	}

	// j1 was enqueued long ago but only just died; j2 is the reverse.
	now := time.Now()
	jobs := []struct {
		job    *queue.Job
		diedAt time.Time
	}{
		{&queue.Job{ID: "j1", Queue: "email", Name: "forgotPasswordEmail", Payload: json.RawMessage(`{}`), CreatedAt: now.Add(-time.Hour)}, time.Time{}},
		{&queue.Job{ID: "j2", Queue: "email", Name: "forgotPasswordEmail", Payload: json.RawMessage(`{}`), CreatedAt: now}, now.Add(-time.Hour)},
	}
	for _, tc := range jobs {
		if err := broker.Push(ctx, tc.job); err != nil {
			t.Fatalf("push: %v", err)
		}
		reserved, err := broker.Reserve(ctx, tc.job.Name, time.Minute)
		if err != nil || reserved == nil {
			t.Fatalf("reserve: %v", err)
		}
		reserved.DiedAt = tc.diedAt
		if _, err := broker.Bury(ctx, reserved); err != nil {
			t.Fatalf("bury: %v", err)
		}
	}

	e := newEcho(NewQueueHandler(nil, reg))

	rec := serve(e, http.MethodGet, "/api/v1/queues", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: %d %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"email":["forgotPasswordEmail"]`) {
		t.Fatalf("audit missing: %s", rec.Body)
	}

	rec = serve(e, http.MethodGet, "/api/v1/queues/email/dead", "")
	var list struct {
		Data struct {
			Rows  []queue.Job `json:"rows"`
			Total int64       `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Data.Total != 2 {
		t.Fatalf("expected 2 dead letters, got %s", rec.Body)
	}

	since := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	rec = serve(e, http.MethodGet, "/api/v1/queues/email/dead?since="+since, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Data.Total != 1 || list.Data.Rows[0].ID != "j1" {
		t.Fatalf("since should filter on death time: %s", rec.Body)
	}

	if rec := serve(e, http.MethodGet, "/api/v1/queues/photos/dead", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/queues/email/dead?limit=5000", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=5000, got %d", rec.Code)
	}
}
