package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "data", "usage.db"))
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	records := []Record{
		{ChatID: "c1", PersonaID: "p1", MessagesSent: 3, TimeElapsed: 2.5, Status: "active", Reason: ReasonTerminated, StartedAt: start, EndedAt: start.Add(time.Minute)},
		{ChatID: "c2", MessagesSent: 1, TimeElapsed: 40, Status: "finished", Reason: ReasonExpired, StartedAt: start, EndedAt: start.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record err: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].ChatID != "c2" || recent[0].Reason != ReasonExpired || recent[0].PersonaID != "" {
		t.Fatalf("expected newest record first, got %+v", recent[0])
	}
	if recent[1].ID == "" || recent[1].PersonaID != "p1" || !recent[1].EndedAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected second record: %+v", recent[1])
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one record with limit, got %d (%v)", len(limited), err)
	}
}

func TestSQLiteTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals err: %v", err)
	}
	if totals != (Totals{}) {
		t.Fatalf("expected empty totals, got %+v", totals)
	}

	now := time.Now()
	store.Record(ctx, Record{ChatID: "a", MessagesSent: 2, TimeElapsed: 1.5, Status: "active", Reason: ReasonTerminated, StartedAt: now, EndedAt: now})
	store.Record(ctx, Record{ChatID: "b", MessagesSent: 5, TimeElapsed: 0.5, Status: "finished", Reason: ReasonTerminated, StartedAt: now, EndedAt: now})

	totals, err = store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals err: %v", err)
	}
	if totals.Sessions != 2 || totals.MessagesSent != 7 || totals.Minutes != 2 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestSQLiteDuplicateIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := Record{ID: "fixed", ChatID: "c1", Status: "active", Reason: ReasonTerminated, StartedAt: time.Now(), EndedAt: time.Now()}

	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("first Record err: %v", err)
	}
	if err := store.Record(ctx, rec); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestSQLiteUsesWAL(t *testing.T) {
	store := newTestStore(t)

	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}
}
