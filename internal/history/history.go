// Package history keeps a bounded per-user record of past conversions.
package history

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

const historyKeyPrefix = "history:"

// Entry is one past conversion.
type Entry struct {
	Time   time.Time       `json:"time"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Result decimal.Decimal `json:"result"`
}

// Options bound the log.
type Options struct {
	// Limit is the ring capacity per user.
	Limit int
	// TTL ages out the whole list for idle users.
	TTL time.Duration
}

// Log appends conversions and lists them most-recent-first. It is purely
// additive; a failed append never fails the conversion that produced it.
type Log struct {
	store  storage.KV
	opts   Options
	logger zerolog.Logger
}

// NewLog constructs the history log.
func NewLog(store storage.KV, opts Options, logger zerolog.Logger) *Log {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	return &Log{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "history_log").Logger(),
	}
}

// Append pushes the entry, evicting the oldest once the ring is full. The
// read-append-trim runs in one store transaction so concurrent conversions
// by the same user cannot drop each other's entries.
func (l *Log) Append(ctx context.Context, userID string, entry Entry) error {
	_, err := l.store.Update(ctx, historyKeyPrefix+userID, l.opts.TTL, func(current string, found bool) (string, error) {
		var entries []Entry
		if found && current != "" {
			if err := json.Unmarshal([]byte(current), &entries); err != nil {
				l.logger.Warn().Err(err).Str("user_id", userID).Msg("corrupt history; starting fresh")
				entries = nil
			}
		}
		entries = append(entries, entry)
		if len(entries) > l.opts.Limit {
			entries = entries[len(entries)-l.opts.Limit:]
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	})
	if err != nil {
		return fmt.Errorf("append history for %s: %w", userID, err)
	}
	return nil
}

// List returns the user's conversions, most recent first.
func (l *Log) List(ctx context.Context, userID string) ([]Entry, error) {
	raw, err := l.store.Get(ctx, historyKeyPrefix+userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", userID, err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", userID, err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
