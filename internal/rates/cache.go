package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"bitcurrency-bot/internal/storage"
)

const cacheKeyPrefix = "rate:"

func cacheKey(fromSymbol, toSymbol string) string {
	return cacheKeyPrefix + fromSymbol + "_" + toSymbol
}

// quoteCache persists resolved quotes in the KV store under the pair's
// symbol key. A stored quote replaces the previous one wholesale; entries
// age out via the store TTL.
type quoteCache struct {
	store  storage.KV
	ttl    time.Duration
	logger zerolog.Logger
}

func newQuoteCache(store storage.KV, ttl time.Duration, logger zerolog.Logger) *quoteCache {
	return &quoteCache{
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "rate_cache").Logger(),
	}
}

// load returns the cached quote for the pair, if present and parseable.
// Store failures and corrupt entries degrade to a miss.
func (c *quoteCache) load(ctx context.Context, fromSymbol, toSymbol string) (Quote, bool) {
	raw, err := c.store.Get(ctx, cacheKey(fromSymbol, toSymbol))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Err(err).Str("from", fromSymbol).Str("to", toSymbol).Msg("cache read failed; treating as miss")
		}
		return Quote{}, false
	}

	var quote Quote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		c.logger.Warn().Err(err).Str("from", fromSymbol).Str("to", toSymbol).Msg("corrupt cache entry; treating as miss")
		return Quote{}, false
	}
	if quote.Rate.Sign() <= 0 {
		return Quote{}, false
	}
	quote.Cached = true
	return quote, true
}

// save writes the quote; failures are logged and swallowed, the caller still
// returns the freshly resolved quote.
func (c *quoteCache) save(ctx context.Context, fromSymbol, toSymbol string, quote Quote) {
	payload, err := json.Marshal(quote)
	if err != nil {
		c.logger.Warn().Err(err).Msg("marshal quote for cache failed")
		return
	}
	if err := c.store.Set(ctx, cacheKey(fromSymbol, toSymbol), string(payload), c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("from", fromSymbol).Str("to", toSymbol).Msg("cache write failed")
	}
}
