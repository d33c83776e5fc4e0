package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zhouzirui/persona-relay/internal/model/chat"
	"github.com/zhouzirui/persona-relay/internal/service/session"
)

func openAt(now time.Time, calls *int32) session.OpenFunc {
	return func(context.Context) (*chat.Session, error) {
		atomic.AddInt32(calls, 1)
		return &chat.Session{StartTime: now, LastActivity: now, Status: chat.StatusActive}, nil
	}
}

func TestGetOrCreateConcurrentFirstUse(t *testing.T) {
	store := session.NewStore()
	ctx := context.Background()
	var calls int32

	var wg sync.WaitGroup
	entries := make([]*session.Entry, 32)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, _, err := store.GetOrCreate(ctx, "c1", openAt(time.Now(), &calls))
			if err != nil {
				t.Errorf("GetOrCreate err: %v", err)
				return
			}
			entries[i] = entry
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one open, got %d", calls)
	}
	for _, entry := range entries {
		if entry != entries[0] {
			t.Fatal("expected every caller to share one entry")
		}
	}
	sess := entries[0].Lock()
	defer entries[0].Unlock()
	if sess.ID != "c1" {
		t.Fatalf("expected session id c1, got %q", sess.ID)
	}
}

func TestGetOrCreateRequiresID(t *testing.T) {
	store := session.NewStore()
	var calls int32
	if _, _, err := store.GetOrCreate(context.Background(), "", openAt(time.Now(), &calls)); !errors.Is(err, session.ErrIDRequired) {
		t.Fatalf("expected ErrIDRequired, got %v", err)
	}
}

func TestGetOrCreateOpenFailureLeavesNoEntry(t *testing.T) {
	store := session.NewStore()
	boom := errors.New("boom")
	_, _, err := store.GetOrCreate(context.Background(), "c1", func(context.Context) (*chat.Session, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestDeleteFreesID(t *testing.T) {
	store := session.NewStore()
	ctx := context.Background()
	var calls int32

	first, _, _ := store.GetOrCreate(ctx, "c1", openAt(time.Now(), &calls))
	if _, err := store.Delete("c1"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, err := store.Delete("c1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	second, created, _ := store.GetOrCreate(ctx, "c1", openAt(time.Now(), &calls))
	if !created || second == first {
		t.Fatal("expected a brand-new entry after delete")
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	store := session.NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	store.GetOrCreate(ctx, "old", openAt(base, &calls))
	store.GetOrCreate(ctx, "fresh", openAt(base.Add(50*time.Minute), &calls))

	expired := store.Sweep(base.Add(time.Hour), 30*time.Minute)
	if len(expired) != 1 || expired[0].ChatID != "old" {
		t.Fatalf("expected only old to expire, got %+v", expired)
	}
	if expired[0].TimeElapsed != 60 {
		t.Fatalf("expected 60 elapsed minutes, got %v", expired[0].TimeElapsed)
	}
	if _, err := store.Get("fresh"); err != nil {
		t.Fatalf("expected fresh to survive: %v", err)
	}
	if got := store.Sweep(base.Add(time.Hour), 0); got != nil {
		t.Fatalf("expected zero ttl to disable sweeping, got %+v", got)
	}
}

func TestSnapshotSummarizesLiveSessions(t *testing.T) {
	store := session.NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	if got := store.Snapshot(base); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", got)
	}

	store.GetOrCreate(ctx, "b", openAt(base, &calls))
	entry, _, _ := store.GetOrCreate(ctx, "a", openAt(base.Add(30*time.Minute), &calls))
	sess := entry.Lock()
	sess.MessagesSent = 3
	entry.Unlock()

	got := store.Snapshot(base.Add(time.Hour))
	if len(got) != 2 || got[0].ChatID != "a" || got[1].ChatID != "b" {
		t.Fatalf("expected sessions ordered by id, got %+v", got)
	}
	if got[0].MessagesSent != 3 || got[0].TimeElapsed != 30 || got[1].TimeElapsed != 60 {
		t.Fatalf("unexpected summaries: %+v", got)
	}
	if store.Len() != 2 {
		t.Fatalf("snapshot must not remove sessions, len=%d", store.Len())
	}
}
