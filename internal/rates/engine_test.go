package rates

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/currency"
	"bitcurrency-bot/internal/storage"
)

// fakeProvider serves prices from a fixed table and records every lookup.
type fakeProvider struct {
	name   string
	prices map[string]string // "BASE/QUOTE" -> price
	calls  []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Price(_ context.Context, base, quote string) (decimal.Decimal, error) {
	key := base + "/" + quote
	f.calls = append(f.calls, key)
	raw, ok := f.prices[key]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, errPairNotQuoted)
	}
	return decimal.RequireFromString(raw), nil
}

func memStore(t *testing.T) storage.KV {
	t.Helper()
	store, err := storage.OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEngine(t *testing.T, providers ...Provider) *Engine {
	t.Helper()
	return NewEngine(providers, memStore(t), Options{CacheTTL: time.Minute, CallTimeout: time.Second}, noopLogger())
}

func mustDesc(t *testing.T, symbol string) currency.Descriptor {
	t.Helper()
	desc, err := currency.Resolve(symbol)
	if err != nil {
		t.Fatalf("resolve %q: %v", symbol, err)
	}
	return desc
}

func TestResolveIdentityNoUpstreamCall(t *testing.T) {
	p := &fakeProvider{name: "binance"}
	engine := testEngine(t, p)

	for _, symbol := range []string{"btc", "uah", "usdt"} {
		desc := mustDesc(t, symbol)
		converted, quote, err := engine.Convert(context.Background(), desc, desc, decimal.RequireFromString("42.5"))
		if err != nil {
			t.Fatalf("identity convert %s: %v", symbol, err)
		}
		if !quote.Rate.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("identity rate = %s, want 1", quote.Rate)
		}
		if !converted.Equal(decimal.RequireFromString("42.5")) {
			t.Fatalf("identity amount = %s, want 42.5", converted)
		}
	}
	if len(p.calls) != 0 {
		t.Fatalf("identity resolution must not call providers, got %v", p.calls)
	}
}

func TestResolveIdentityCoversAliases(t *testing.T) {
	// usd and usdt both map to USDT.
	engine := testEngine(t, &fakeProvider{name: "binance"})
	quote, err := engine.Resolve(context.Background(), mustDesc(t, "usd"), mustDesc(t, "usdt"))
	if err != nil {
		t.Fatalf("usd->usdt: %v", err)
	}
	if !quote.Rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("alias rate = %s, want 1", quote.Rate)
	}
}

func TestResolveDirect(t *testing.T) {
	p := &fakeProvider{name: "binance", prices: map[string]string{"BTC/USDT": "65000"}}
	engine := testEngine(t, p)

	quote, err := engine.Resolve(context.Background(), mustDesc(t, "btc"), mustDesc(t, "usdt"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.Source() != "binance direct" {
		t.Fatalf("source = %q", quote.Source())
	}
	if !quote.Rate.Equal(decimal.RequireFromString("65000")) {
		t.Fatalf("rate = %s", quote.Rate)
	}
}

func TestResolveReversedInvertsPrice(t *testing.T) {
	// No USDTBTC market; BTCUSDT trades at 65000, so usd->btc is 1/65000.
	p := &fakeProvider{name: "binance", prices: map[string]string{"BTC/USDT": "65000"}}
	engine := testEngine(t, p)

	converted, quote, err := engine.Convert(context.Background(), mustDesc(t, "usd"), mustDesc(t, "btc"), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if quote.Source() != "binance reversed" {
		t.Fatalf("source = %q", quote.Source())
	}
	want := decimal.RequireFromString("0.00153846")
	if converted.Round(8).Cmp(want) != 0 {
		t.Fatalf("converted = %s, want ~%s", converted, want)
	}
}

func TestResolveCacheConsistency(t *testing.T) {
	p := &fakeProvider{name: "binance", prices: map[string]string{"BTC/USDT": "65000"}}
	engine := testEngine(t, p)
	ctx := context.Background()
	from, to := mustDesc(t, "btc"), mustDesc(t, "usdt")

	first, err := engine.Resolve(ctx, from, to)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	callsAfterFirst := len(p.calls)

	second, err := engine.Resolve(ctx, from, to)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Source() != "cached" {
		t.Fatalf("second source = %q, want cached", second.Source())
	}
	if !second.Rate.Equal(first.Rate) {
		t.Fatalf("cached rate %s != fresh rate %s", second.Rate, first.Rate)
	}
	if len(p.calls) != callsAfterFirst {
		t.Fatalf("cache hit must not call providers: %v", p.calls)
	}
}

func TestResolveCacheExpiry(t *testing.T) {
	p := &fakeProvider{name: "binance", prices: map[string]string{"BTC/USDT": "65000"}}
	engine := NewEngine([]Provider{p}, memStore(t), Options{CacheTTL: 30 * time.Millisecond, CallTimeout: time.Second}, noopLogger())
	ctx := context.Background()
	from, to := mustDesc(t, "btc"), mustDesc(t, "usdt")

	if _, err := engine.Resolve(ctx, from, to); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	callsAfterFirst := len(p.calls)

	time.Sleep(60 * time.Millisecond)

	quote, err := engine.Resolve(ctx, from, to)
	if err != nil {
		t.Fatalf("post-expiry resolve: %v", err)
	}
	if quote.Source() == "cached" {
		t.Fatal("expired entry must trigger a fresh resolution")
	}
	if len(p.calls) == callsAfterFirst {
		t.Fatal("expected a fresh provider call after TTL expiry")
	}
}

func TestResolveFallbackOrdering(t *testing.T) {
	// Provider A knows nothing about the pair; provider B quotes it
	// directly. The secondary provider must win before any bridging.
	a := &fakeProvider{name: "binance"}
	b := &fakeProvider{name: "whitebit", prices: map[string]string{"ETH/BTC": "0.051"}}
	engine := testEngine(t, a, b)

	quote, err := engine.Resolve(context.Background(), mustDesc(t, "eth"), mustDesc(t, "btc"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.Source() != "whitebit direct" {
		t.Fatalf("source = %q, want whitebit direct", quote.Source())
	}
	wantA := []string{"ETH/BTC", "BTC/ETH"}
	if len(a.calls) != len(wantA) || a.calls[0] != wantA[0] || a.calls[1] != wantA[1] {
		t.Fatalf("provider A sweep = %v, want %v", a.calls, wantA)
	}
	if len(b.calls) != 1 || b.calls[0] != "ETH/BTC" {
		t.Fatalf("provider B sweep = %v, want single direct call", b.calls)
	}
}

func TestResolveBridgedViaUSDT(t *testing.T) {
	// eth->uah has no market anywhere; both legs against USDT exist.
	p := &fakeProvider{name: "binance", prices: map[string]string{
		"ETH/USDT": "3000",
		"USDT/UAH": "41.5",
	}}
	engine := testEngine(t, p)

	quote, err := engine.Resolve(context.Background(), mustDesc(t, "eth"), mustDesc(t, "uah"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.Source() != "bridged" {
		t.Fatalf("source = %q, want bridged", quote.Source())
	}
	if !quote.Rate.Equal(decimal.RequireFromString("124500")) {
		t.Fatalf("rate = %s, want 124500", quote.Rate)
	}
}

func TestResolveBridgedViaBTCWhenUSDTLegsFail(t *testing.T) {
	p := &fakeProvider{name: "binance", prices: map[string]string{
		"ETH/BTC": "0.05",
		"BTC/UAH": "2700000",
	}}
	engine := testEngine(t, p)

	quote, err := engine.Resolve(context.Background(), mustDesc(t, "eth"), mustDesc(t, "uah"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.Method != MethodBridged {
		t.Fatalf("method = %q, want bridged", quote.Method)
	}
	if !quote.Rate.Equal(decimal.RequireFromString("135000")) {
		t.Fatalf("rate = %s, want 135000", quote.Rate)
	}
}

func TestResolveStaticFallback(t *testing.T) {
	engine := testEngine(t, &fakeProvider{name: "binance"}, &fakeProvider{name: "whitebit"})

	quote, err := engine.Resolve(context.Background(), mustDesc(t, "uah"), mustDesc(t, "usdt"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.Source() != "fallback" {
		t.Fatalf("source = %q, want fallback", quote.Source())
	}
	if !quote.Rate.Equal(decimal.RequireFromString("0.0239")) {
		t.Fatalf("rate = %s, want 0.0239", quote.Rate)
	}
}

func TestResolveUnavailable(t *testing.T) {
	engine := testEngine(t, &fakeProvider{name: "binance"})

	_, err := engine.Resolve(context.Background(), mustDesc(t, "doge"), mustDesc(t, "jpy"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
