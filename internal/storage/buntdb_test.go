package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *BuntStore {
	t.Helper()
	store, err := OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSetGetDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := store.Get(ctx, "k")
	if err != nil || value != "v" {
		t.Fatalf("get: %q, %v", value, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "ephemeral", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Get(ctx, "ephemeral"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := store.Get(ctx, "ephemeral"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestUpdateCreatesAndMutates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	next, err := store.Update(ctx, "counter", 0, func(current string, found bool) (string, error) {
		if found {
			t.Fatal("first update must see an absent key")
		}
		return "1", nil
	})
	if err != nil || next != "1" {
		t.Fatalf("first update: %q, %v", next, err)
	}

	next, err = store.Update(ctx, "counter", 0, func(current string, found bool) (string, error) {
		if !found || current != "1" {
			t.Fatalf("second update saw found=%v current=%q", found, current)
		}
		return "2", nil
	})
	if err != nil || next != "2" {
		t.Fatalf("second update: %q, %v", next, err)
	}
}

func TestUpdateSkip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Update(ctx, "k", 0, func(string, bool) (string, error) {
		return "", ErrSkipUpdate
	})
	if !errors.Is(err, ErrSkipUpdate) {
		t.Fatalf("expected ErrSkipUpdate, got %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("skipped update must not write, got %v", err)
	}
}

func TestScanPrefix(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"alerts:u1", "alerts:u2", "quota:u1"} {
		if err := store.Set(ctx, key, "v", 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := store.Scan(ctx, "alerts:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "alerts:u1" || keys[1] != "alerts:u2" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestGetHonoursContext(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
