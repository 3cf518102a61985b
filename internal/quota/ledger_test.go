package quota

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bitcurrency-bot/internal/storage"
)

func testLedger(t *testing.T, opts Options) (*Ledger, storage.KV) {
	t.Helper()
	store, err := storage.OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewLedger(store, opts, zerolog.Nop()), store
}

func TestCheckFreshUser(t *testing.T) {
	ledger, _ := testLedger(t, Options{DailyLimit: 5})
	allowed, remaining, err := ledger.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !allowed || remaining != "5" {
		t.Fatalf("fresh user: allowed=%v remaining=%q", allowed, remaining)
	}
}

func TestAdminBypass(t *testing.T) {
	ledger, store := testLedger(t, Options{DailyLimit: 5, AdminIDs: []string{"admin1"}})
	ctx := context.Background()

	// Stored exhaustion must not matter for admins.
	rec, _ := json.Marshal(record{Requests: 99, LastReset: time.Now().Format(dayFormat)})
	if err := store.Set(ctx, quotaKeyPrefix+"admin1", string(rec), 0); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	allowed, remaining, err := ledger.Check(ctx, "admin1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !allowed || remaining != Unlimited {
		t.Fatalf("admin: allowed=%v remaining=%q", allowed, remaining)
	}
}

func TestSubscriberBypass(t *testing.T) {
	ledger, _ := testLedger(t, Options{DailyLimit: 1})
	ctx := context.Background()

	if err := ledger.GrantSubscription(ctx, "u2"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Granting twice is a no-op, not an error.
	if err := ledger.GrantSubscription(ctx, "u2"); err != nil {
		t.Fatalf("regrant: %v", err)
	}

	for i := 0; i < 3; i++ {
		allowed, remaining, err := ledger.Check(ctx, "u2")
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !allowed || remaining != Unlimited {
			t.Fatalf("subscriber: allowed=%v remaining=%q", allowed, remaining)
		}
	}
}

func TestQuotaExhaustionAndRecord(t *testing.T) {
	ledger, _ := testLedger(t, Options{DailyLimit: 2})
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		allowed, _, err := ledger.Check(ctx, "u3")
		if err != nil || !allowed {
			t.Fatalf("request %d should be allowed: %v", want, err)
		}
		used, err := ledger.Record(ctx, "u3")
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if used != want {
			t.Fatalf("used = %d, want %d", used, want)
		}
	}

	allowed, remaining, err := ledger.Check(ctx, "u3")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if allowed || remaining != "0" {
		t.Fatalf("exhausted user: allowed=%v remaining=%q", allowed, remaining)
	}
}

func TestQuotaRollover(t *testing.T) {
	ledger, store := testLedger(t, Options{DailyLimit: 5})
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1).Format(dayFormat)
	rec, _ := json.Marshal(record{Requests: 5, LastReset: yesterday})
	if err := store.Set(ctx, quotaKeyPrefix+"u4", string(rec), 0); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	allowed, remaining, err := ledger.Check(ctx, "u4")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !allowed || remaining != "5" {
		t.Fatalf("rollover: allowed=%v remaining=%q", allowed, remaining)
	}

	used, err := ledger.Record(ctx, "u4")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if used != 1 {
		t.Fatalf("used after rollover = %d, want 1", used)
	}
}

func TestRecordConcurrentNeverLosesIncrements(t *testing.T) {
	ledger, _ := testLedger(t, Options{DailyLimit: 100})
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := ledger.Record(ctx, "u5"); err != nil {
				t.Errorf("Record failed: %v", err)
			}
		}()
	}
	wg.Wait()

	used, err := ledger.Record(ctx, "u5")
	if err != nil {
		t.Fatalf("final Record failed: %v", err)
	}
	if used != workers+1 {
		t.Fatalf("used = %d, want %d", used, workers+1)
	}
}

func TestRemainingFormatting(t *testing.T) {
	ledger, _ := testLedger(t, Options{DailyLimit: 5, AdminIDs: []string{"root"}})
	if got := ledger.Remaining("u6", 4); got != "1" {
		t.Fatalf("Remaining = %q, want 1", got)
	}
	if got := ledger.Remaining("u6", 9); got != "0" {
		t.Fatalf("over-consumed Remaining = %q, want 0", got)
	}
	if got := ledger.Remaining("root", 3); got != Unlimited {
		t.Fatalf("admin Remaining = %q, want %q", got, Unlimited)
	}
}
