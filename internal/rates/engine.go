package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/currency"
	"bitcurrency-bot/internal/storage"
)

// Bridge assets tried in order when no provider quotes the pair itself:
// the dominant stablecoin first, then the dominant crypto asset.
var bridgeCodes = []string{"USDT", "BTC"}

// staticFallbacks covers pairs no public ticker reaches. Keyed by
// provider-code pair.
var staticFallbacks = map[[2]string]decimal.Decimal{
	{"UAH", "USDT"}: decimal.RequireFromString("0.0239"),
	{"USDT", "UAH"}: decimal.RequireFromString("41.84"),
	{"EUR", "USDT"}: decimal.RequireFromString("1.08"),
}

// Observer counts upstream lookups. *metrics.Set satisfies it.
type Observer interface {
	ProviderRequest(provider, status string)
}

// Options tune the resolution engine.
type Options struct {
	// CacheTTL bounds how long a resolved quote is served from cache.
	CacheTTL time.Duration
	// CallTimeout bounds every single upstream provider call.
	CallTimeout time.Duration
	// Observer, when set, counts every provider call.
	Observer Observer
}

// Engine resolves a priced quote for a currency pair. The chain runs
// strictly in order and short-circuits on the first success: identity,
// cache, direct and reversed quotes per provider, bridged quotes, then the
// static fallback table.
type Engine struct {
	providers []Provider
	cache     *quoteCache
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine wires providers (in fallback order) and the quote cache.
func NewEngine(providers []Provider, store storage.KV, opts Options, logger zerolog.Logger) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 300 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	engineLogger := logger.With().Str("component", "rate_engine").Logger()
	return &Engine{
		providers: providers,
		cache:     newQuoteCache(store, opts.CacheTTL, engineLogger),
		opts:      opts,
		logger:    engineLogger,
		now:       time.Now,
	}
}

// Convert resolves the pair and converts amount with the resulting rate.
func (e *Engine) Convert(ctx context.Context, from, to currency.Descriptor, amount decimal.Decimal) (decimal.Decimal, Quote, error) {
	quote, err := e.Resolve(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, Quote{}, err
	}
	return amount.Mul(quote.Rate), quote, nil
}

// Resolve walks the resolution chain for the pair.
func (e *Engine) Resolve(ctx context.Context, from, to currency.Descriptor) (Quote, error) {
	// Identity covers aliases too: usd and usdt share the USDT code.
	if from.Code == to.Code {
		quote := Quote{
			From:       from.Code,
			To:         to.Code,
			Rate:       decimal.NewFromInt(1),
			Method:     MethodDirect,
			ObservedAt: e.now().UTC(),
		}
		e.cache.save(ctx, from.Symbol, to.Symbol, quote)
		return quote, nil
	}

	if cached, ok := e.cache.load(ctx, from.Symbol, to.Symbol); ok {
		return cached, nil
	}

	if quote, ok := e.resolvePair(ctx, from.Code, to.Code); ok {
		e.cache.save(ctx, from.Symbol, to.Symbol, quote)
		return quote, nil
	}

	if quote, ok := e.resolveBridged(ctx, from.Code, to.Code); ok {
		e.cache.save(ctx, from.Symbol, to.Symbol, quote)
		return quote, nil
	}

	if rate, ok := staticFallbacks[[2]string{from.Code, to.Code}]; ok {
		quote := Quote{
			From:       from.Code,
			To:         to.Code,
			Rate:       rate,
			Method:     MethodFallback,
			ObservedAt: e.now().UTC(),
		}
		e.cache.save(ctx, from.Symbol, to.Symbol, quote)
		return quote, nil
	}

	e.logger.Warn().Str("from", from.Symbol).Str("to", to.Symbol).Msg("resolution chain exhausted")
	return Quote{}, fmt.Errorf("%w: %s to %s", ErrUnavailable, from.Symbol, to.Symbol)
}

// resolvePair sweeps every provider with a direct then a reversed lookup.
// All the cheaper steps of one provider run before the next provider is
// consulted, so ordering is: A direct, A reversed, B direct, B reversed.
func (e *Engine) resolvePair(ctx context.Context, fromCode, toCode string) (Quote, bool) {
	for _, p := range e.providers {
		if price, err := e.fetch(ctx, p, fromCode, toCode); err == nil {
			return e.newQuote(fromCode, toCode, price, p.Name(), MethodDirect), true
		}
		if price, err := e.fetch(ctx, p, toCode, fromCode); err == nil {
			rate := decimal.NewFromInt(1).DivRound(price, 18)
			return e.newQuote(fromCode, toCode, rate, p.Name(), MethodReversed), true
		}
	}
	return Quote{}, false
}

// resolveBridged derives from->bridge and bridge->to independently and
// multiplies the legs. A bridge is skipped when either side already is the
// bridge asset.
func (e *Engine) resolveBridged(ctx context.Context, fromCode, toCode string) (Quote, bool) {
	for _, bridge := range bridgeCodes {
		if fromCode == bridge || toCode == bridge {
			continue
		}
		legIn, okIn := e.resolvePair(ctx, fromCode, bridge)
		if !okIn {
			continue
		}
		legOut, okOut := e.resolvePair(ctx, bridge, toCode)
		if !okOut {
			continue
		}
		rate := legIn.Rate.Mul(legOut.Rate)
		if rate.Sign() <= 0 {
			continue
		}
		e.logger.Debug().
			Str("from", fromCode).Str("to", toCode).Str("bridge", bridge).
			Str("rate", rate.String()).Msg("resolved via bridge")
		return e.newQuote(fromCode, toCode, rate, "", MethodBridged), true
	}
	return Quote{}, false
}

// fetch performs one bounded provider call. Any error, including timeout and
// invalid payloads, fails this step only.
func (e *Engine) fetch(ctx context.Context, p Provider, base, quote string) (decimal.Decimal, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	price, err := p.Price(callCtx, base, quote)
	if err != nil {
		if e.opts.Observer != nil {
			e.opts.Observer.ProviderRequest(p.Name(), "error")
		}
		e.logger.Debug().Err(err).
			Str("provider", p.Name()).Str("base", base).Str("quote", quote).
			Msg("provider step failed")
		return decimal.Decimal{}, err
	}
	if e.opts.Observer != nil {
		e.opts.Observer.ProviderRequest(p.Name(), "ok")
	}
	return price, nil
}

func (e *Engine) newQuote(fromCode, toCode string, rate decimal.Decimal, provider string, method Method) Quote {
	return Quote{
		From:       fromCode,
		To:         toCode,
		Rate:       rate,
		Provider:   provider,
		Method:     method,
		ObservedAt: e.now().UTC(),
	}
}
