package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBrokerRejectsStaleLease(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker("q", 0)
	if err := b.Push(ctx, &Job{ID: "1", Queue: "q", Name: "n"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	held, err := b.Reserve(ctx, "n", time.Millisecond)
	if err != nil || held == nil {
		t.Fatalf("reserve: %v %v", held, err)
	}

	claimed, err := b.ClaimStalled(ctx, "n", time.Now().Add(time.Second), time.Minute, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	if ok, _ := b.Ack(ctx, held); ok {
		t.Fatal("stale holder must not ack a reclaimed job")
	}
	if ok, _ := b.Ack(ctx, claimed[0]); !ok {
		t.Fatal("claimer should own the lease")
	}
	st, _ := b.Stats(ctx, "n")
	if st.Completed != 1 || st.Active != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMemoryBrokerDeadRetention(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker("q", 2)
	for _, id := range []string{"a", "b", "c"} {
		_ = b.Push(ctx, &Job{ID: id, Name: "n"})
		j, _ := b.Reserve(ctx, "n", time.Minute)
		if ok, err := b.Bury(ctx, j); !ok || err != nil {
			t.Fatalf("bury %s: %v %v", id, ok, err)
		}
	}

	dead, _ := b.DeadLetters(ctx, 0)
	if len(dead) != 2 || dead[0].ID != "c" || dead[1].ID != "b" {
		t.Fatalf("expected newest two dead jobs, got %+v", dead)
	}
	if dead[0].DiedAt.IsZero() {
		t.Fatal("bury should stamp DiedAt")
	}
}

func TestMemoryBrokerPromotesOnlyDueJobs(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker("q", 0)
	now := time.Now()
	for i, at := range []time.Time{now.Add(-time.Second), now.Add(time.Hour)} {
		j := &Job{ID: string(rune('a' + i)), Name: "n"}
		_ = b.Push(ctx, j)
		r, _ := b.Reserve(ctx, "n", time.Minute)
		if ok, _ := b.Retry(ctx, r, at); !ok {
			t.Fatal("retry should own the lease")
		}
	}

	n, err := b.PromoteDue(ctx, "n", now, 10)
	if err != nil || n != 1 {
		t.Fatalf("promote: %d %v", n, err)
	}
	st, _ := b.Stats(ctx, "n")
	if st.Waiting != 1 || st.Delayed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
