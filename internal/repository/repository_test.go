package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Socially/internal/domain/models"
	domrepo "Socially/internal/domain/repository"
	"Socially/pkg/cache"
	"Socially/pkg/queue"

	"github.com/segmentio/kafka-go"
)

func newMemory(t *testing.T) cache.Service {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAuthStoreLookups(t *testing.T) {
	ctx := context.Background()
	s := NewAuthStore(newMemory(t))

	a := &models.AuthUser{ID: "1", Username: "Manny", Email: "Manny@Test.com", Password: "hash"}
	if err := s.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetByEmail(ctx, "manny@test.com")
	if err != nil || got.ID != "1" {
		t.Fatalf("by email: %+v %v", got, err)
	}
	if _, err := s.GetByEmail(ctx, "none@test.com"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthStoreClaim(t *testing.T) {
	ctx := context.Background()
	s := NewAuthStore(newMemory(t))

	ok, err := s.Claim(ctx, "1", "Manny", "manny@test.com", time.Hour)
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, _ := s.Claim(ctx, "2", "MANNY", "other@test.com", time.Hour); ok {
		t.Fatal("username claimed twice")
	}
	if ok, _ := s.Claim(ctx, "3", "other", "Manny@Test.com", time.Hour); ok {
		t.Fatal("email claimed twice")
	}
	// the failed email claim must not leave "other" reserved
	if ok, _ := s.Claim(ctx, "4", "other", "four@test.com", time.Hour); !ok {
		t.Fatal("username left reserved by a failed claim")
	}

	if err := s.Release(ctx, "2", "manny", "manny@test.com"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Claim(ctx, "5", "manny", "five@test.com", time.Hour); ok {
		t.Fatal("release by a non-owner dropped the claim")
	}
	if err := s.Release(ctx, "1", "manny", "manny@test.com"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Claim(ctx, "6", "manny", "manny@test.com", time.Hour); !ok {
		t.Fatal("released claim still held")
	}
}

func TestAuthStoreResetToken(t *testing.T) {
	ctx := context.Background()
	s := NewAuthStore(newMemory(t))
	_ = s.Create(ctx, &models.AuthUser{ID: "1", Username: "manny", Email: "m@test.com", Password: "old"})

	exp := time.Now().Add(time.Hour)
	if err := s.UpdatePasswordToken(ctx, "1", "tok1", exp); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdatePasswordToken(ctx, "1", "tok2", exp); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetByResetToken(ctx, "tok1"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("replaced token must not resolve, got %v", err)
	}
	a, err := s.GetByResetToken(ctx, "tok2")
	if err != nil || !a.ResetTokenValid("tok2", time.Now()) {
		t.Fatalf("current token: %+v %v", a, err)
	}

	if err := s.UpdatePassword(ctx, "1", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetByResetToken(ctx, "tok2"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatal("token must be cleared after password update")
	}
	a, _ = s.GetByEmail(ctx, "m@test.com")
	if a.Password != "new" || a.PasswordResetToken != "" {
		t.Fatalf("unexpected record %+v", a)
	}
}

func TestUserStoreAndCache(t *testing.T) {
	ctx := context.Background()
	c := newMemory(t)
	store := NewUserStore(c)
	uc := NewUserCache(c, time.Minute)

	u := &models.User{ID: "u1", AuthID: "a1", Username: "manny"}
	if err := uc.Save(ctx, u); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetByID(ctx, "u1"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatal("store and cache are separate keyspaces")
	}
	if err := store.Create(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetByID(ctx, "u1")
	if err != nil || got.AuthID != "a1" {
		t.Fatalf("store get: %+v %v", got, err)
	}
	got, err = uc.Get(ctx, "u1")
	if err != nil || got.Username != "manny" {
		t.Fatalf("cache get: %+v %v", got, err)
	}
}

type capturePublisher struct {
	topic   string
	key     []byte
	value   interface{}
	headers []kafka.Header
}

func (p *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return nil
}

func TestKafkaDeadLetterSink(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewKafkaDeadLetterSink(pub, "socially.jobs.dead")

	dl := &queue.DeadLetter{
		Job:   &queue.Job{ID: "j1", Queue: "email", Name: "forgotPasswordEmail", Payload: json.RawMessage(`{}`), Attempts: 3},
		Error: "smtp down",
	}
	if err := sink.DeadLetter(context.Background(), dl); err != nil {
		t.Fatal(err)
	}
	if pub.topic != "socially.jobs.dead" || string(pub.key) != "email/forgotPasswordEmail" {
		t.Fatalf("unexpected publish %s %s", pub.topic, pub.key)
	}
	if pub.value != dl || len(pub.headers) != 2 {
		t.Fatalf("unexpected value/headers %+v %+v", pub.value, pub.headers)
	}
}
