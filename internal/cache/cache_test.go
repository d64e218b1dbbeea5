package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/wandbplot/pkg/wandb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCacheMiss(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get(context.Background(), "e", "p", "abc", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected miss for empty cache")
	}
}

func TestCachePutGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rows := []wandb.HistoryRow{
		{"_step": 0.0, "loss": 1.5},
		{"_step": 1.0, "loss": nil},
	}
	if err := store.Put(ctx, "e", "p", "abc", false, rows); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Get(ctx, "e", "p", "abc", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0]["loss"] != 1.5 {
		t.Errorf("expected loss 1.5, got %v", got[0]["loss"])
	}
	if got[1]["loss"] != nil {
		t.Errorf("expected null loss preserved, got %v", got[1]["loss"])
	}
}

func TestCacheResolutionIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sampled := []wandb.HistoryRow{{"_step": 0.0, "loss": 1.0}}
	if err := store.Put(ctx, "e", "p", "abc", false, sampled); err != nil {
		t.Fatal(err)
	}

	// Full-res entry is independent of the sampled one.
	if _, ok, err := store.Get(ctx, "e", "p", "abc", true, 0); err != nil || ok {
		t.Errorf("expected full-res miss, ok=%v err=%v", ok, err)
	}
}

func TestCacheReplace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "e", "p", "abc", false, []wandb.HistoryRow{{"_step": 0.0}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "e", "p", "abc", false, []wandb.HistoryRow{{"_step": 0.0}, {"_step": 1.0}}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Get(ctx, "e", "p", "abc", false, 0)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if len(got) != 2 {
		t.Errorf("expected replaced entry with 2 rows, got %d", len(got))
	}
}

func TestCacheExpiry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "e", "p", "abc", false, []wandb.HistoryRow{{"_step": 0.0}}); err != nil {
		t.Fatal(err)
	}

	// A tiny maxAge expires the entry immediately.
	time.Sleep(5 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "e", "p", "abc", false, time.Nanosecond); err != nil || ok {
		t.Errorf("expected expired entry to miss, ok=%v err=%v", ok, err)
	}

	// A generous maxAge still hits.
	if _, ok, err := store.Get(ctx, "e", "p", "abc", false, time.Hour); err != nil || !ok {
		t.Errorf("expected fresh entry to hit, ok=%v err=%v", ok, err)
	}
}

func TestCacheInvalidate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "e", "p", "abc", false, []wandb.HistoryRow{{"_step": 0.0}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "e", "p", "abc", true, []wandb.HistoryRow{{"_step": 0.0}}); err != nil {
		t.Fatal(err)
	}

	if err := store.Invalidate(ctx, "e", "p", "abc"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "e", "p", "abc", false, 0); ok {
		t.Error("expected sampled entry gone after invalidate")
	}
	if _, ok, _ := store.Get(ctx, "e", "p", "abc", true, 0); ok {
		t.Error("expected full-res entry gone after invalidate")
	}
}
