// Package stats maintains aggregate usage counters in the store. The
// counters are process-agnostic: every component receives the same injected
// Counters instance and all mutation happens in store transactions, so there
// is no ambient global state to tear down.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/storage"
)

const statsKey = "stats"

// Snapshot is the aggregate state at one point in time.
type Snapshot struct {
	TotalRequests int64            `json:"total_requests"`
	RequestTypes  map[string]int64 `json:"request_types"`
	Users         map[string]bool  `json:"users"`
	Subscriptions int64            `json:"subscriptions"`
	Revenue       decimal.Decimal  `json:"revenue"`
}

func emptySnapshot() Snapshot {
	return Snapshot{
		RequestTypes: map[string]int64{},
		Users:        map[string]bool{},
		Revenue:      decimal.Zero,
	}
}

// Options tune persistence.
type Options struct {
	// TTL refreshes on every write; zero keeps the snapshot forever.
	TTL time.Duration
}

// Counters is the single store-backed statistics object.
type Counters struct {
	store  storage.KV
	opts   Options
	logger zerolog.Logger
}

// NewCounters constructs the counters.
func NewCounters(store storage.KV, opts Options, logger zerolog.Logger) *Counters {
	return &Counters{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// RecordRequest bumps the global counter and the per-type histogram. Label
// identifies the request kind, e.g. "usd_to_btc" or "alert_create".
func (c *Counters) RecordRequest(ctx context.Context, userID, label string) error {
	return c.mutate(ctx, func(s *Snapshot) {
		s.TotalRequests++
		s.RequestTypes[label]++
		s.Users[userID] = true
	})
}

// RecordSubscription bumps the sold-subscription counter and revenue.
func (c *Counters) RecordSubscription(ctx context.Context, amount decimal.Decimal) error {
	return c.mutate(ctx, func(s *Snapshot) {
		s.Subscriptions++
		s.Revenue = s.Revenue.Add(amount)
	})
}

// Read returns the current snapshot; an absent key yields zeroes.
func (c *Counters) Read(ctx context.Context) (Snapshot, error) {
	raw, err := c.store.Get(ctx, statsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read stats: %w", err)
	}
	return c.decode(raw), nil
}

func (c *Counters) mutate(ctx context.Context, fn func(*Snapshot)) error {
	_, err := c.store.Update(ctx, statsKey, c.opts.TTL, func(current string, found bool) (string, error) {
		snapshot := emptySnapshot()
		if found {
			snapshot = c.decode(current)
		}
		fn(&snapshot)
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	})
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	return nil
}

func (c *Counters) decode(raw string) Snapshot {
	snapshot := emptySnapshot()
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		c.logger.Warn().Err(err).Msg("corrupt stats snapshot; starting fresh")
		return emptySnapshot()
	}
	if snapshot.RequestTypes == nil {
		snapshot.RequestTypes = map[string]int64{}
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]bool{}
	}
	return snapshot
}
