// Package currency holds the static table of supported currencies and the
// display-precision rules tied to them.
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownCurrency reports an unsupported symbol. It is a client error:
// callers must not retry it against the resolution chain.
var ErrUnknownCurrency = errors.New("currency: unknown symbol")

// PrecisionClass selects how many fractional digits a converted amount is
// displayed with.
type PrecisionClass int

const (
	// PrecisionStandard renders 6 fractional digits.
	PrecisionStandard PrecisionClass = iota
	// PrecisionHigh renders 8 fractional digits, for volatile crypto assets.
	PrecisionHigh
)

func (p PrecisionClass) digits() int32 {
	if p == PrecisionHigh {
		return 8
	}
	return 6
}

// Descriptor is an immutable currency entry.
type Descriptor struct {
	// Symbol is the lowercase user-facing alias, e.g. "btc".
	Symbol string
	// Code is the provider-native code, e.g. "BTC". Note usd maps to USDT.
	Code string
	// Precision classifies the display precision of amounts in this currency.
	Precision PrecisionClass
}

var highPrecisionCodes = map[string]struct{}{
	"BTC": {}, "ETH": {}, "XRP": {}, "DOGE": {}, "ADA": {}, "SOL": {},
	"LTC": {}, "BNB": {}, "TRX": {}, "DOT": {}, "MATIC": {},
}

var registry = buildRegistry(map[string]string{
	"usd": "USDT", "uah": "UAH", "eur": "EUR",
	"rub": "RUB", "jpy": "JPY", "cny": "CNY",
	"gbp": "GBP", "kzt": "KZT", "try": "TRY",
	"btc": "BTC", "eth": "ETH", "xrp": "XRP",
	"doge": "DOGE", "ada": "ADA", "sol": "SOL",
	"ltc": "LTC", "usdt": "USDT", "bnb": "BNB",
	"trx": "TRX", "dot": "DOT", "matic": "MATIC",
})

func buildRegistry(codes map[string]string) map[string]Descriptor {
	out := make(map[string]Descriptor, len(codes))
	for symbol, code := range codes {
		precision := PrecisionStandard
		if _, ok := highPrecisionCodes[code]; ok {
			precision = PrecisionHigh
		}
		out[symbol] = Descriptor{Symbol: symbol, Code: code, Precision: precision}
	}
	return out
}

// Resolve looks up a symbol case-insensitively.
func Resolve(symbol string) (Descriptor, error) {
	desc, ok := registry[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, symbol)
	}
	return desc, nil
}

// Symbols returns all supported symbols in sorted order.
func Symbols() []string {
	out := make([]string, 0, len(registry))
	for symbol := range registry {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Format renders an amount with the descriptor's display precision.
func (d Descriptor) Format(amount decimal.Decimal) string {
	return amount.StringFixed(d.Precision.digits())
}
