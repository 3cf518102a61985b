// Package rates resolves currency-pair quotes through a chain of exchange
// tickers, bridge currencies, and static fallbacks, fronted by a TTL cache.
package rates

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the whole resolution chain is exhausted.
var ErrUnavailable = errors.New("rates: no rate found")

// errPairNotQuoted marks a single failed step; the engine falls through to
// the next step instead of surfacing it.
var errPairNotQuoted = errors.New("rates: pair not quoted")

// Method records how a quote was derived.
type Method string

const (
	MethodDirect   Method = "direct"
	MethodReversed Method = "reversed"
	MethodBridged  Method = "bridged"
	MethodFallback Method = "fallback"
)

// Quote is an immutable priced pair observation.
type Quote struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Rate       decimal.Decimal `json:"rate"`
	Provider   string          `json:"provider,omitempty"`
	Method     Method          `json:"method"`
	ObservedAt time.Time       `json:"observed_at"`
	Cached     bool            `json:"-"`
}

// Source describes the quote origin for display and assertions:
// "cached", "fallback", or "<provider> <method>".
func (q Quote) Source() string {
	if q.Cached {
		return "cached"
	}
	if q.Provider == "" {
		return string(q.Method)
	}
	return q.Provider + " " + string(q.Method)
}

// Provider is a single upstream exchange ticker. Price returns units of
// quote per 1 base; implementations must validate the payload and reject
// non-positive or malformed prices with an error.
type Provider interface {
	Name() string
	Price(ctx context.Context, base, quote string) (decimal.Decimal, error)
}
