package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestBinancePriceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol = %q, want BTCUSDT", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "65000.00"})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	price, err := b.Price(context.Background(), "BTC", "USDT")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("65000")) {
		t.Fatalf("price = %s, want 65000", price)
	}
}

func TestBinancePriceRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-1", "", "not-a-number"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": raw})
		}))

		b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
		if _, err := b.Price(context.Background(), "BTC", "USDT"); err == nil {
			t.Fatalf("price %q should be rejected", raw)
		}
		srv.Close()
	}
}

func TestBinancePriceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1121, "msg": "Invalid symbol."})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := b.Price(context.Background(), "XXX", "YYY"); err == nil {
		t.Fatal("HTTP 400 should be an error")
	}
}

func TestBinancePriceContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "1"})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Price(ctx, "BTC", "USDT"); err == nil {
		t.Fatal("expired context should abort the call")
	}
}
