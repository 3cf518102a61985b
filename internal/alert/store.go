// Package alert stores standing price alerts and re-evaluates them on a
// timer.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/currency"
	"bitcurrency-bot/internal/storage"
)

const alertKeyPrefix = "alerts:"

// ErrInvalidTarget reports a non-positive target rate.
var ErrInvalidTarget = errors.New("alert: target rate must be positive")

// Record is one standing alert: notify once when the pair's rate drops to
// the target or below. Fired alerts stay stored; the user re-arms by
// creating a new alert.
type Record struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Target    decimal.Decimal `json:"target"`
	Fired     bool            `json:"fired"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options tune persistence.
type Options struct {
	// TTL refreshes on every write of a user's alert list.
	TTL time.Duration
}

// Store keeps per-user alert lists in the KV store.
type Store struct {
	store  storage.KV
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore constructs the alert store.
func NewStore(store storage.KV, opts Options, logger zerolog.Logger) *Store {
	return &Store{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "alert_store").Logger(),
		now:    time.Now,
	}
}

// Create validates the pair and target, then appends a new unfired alert.
func (s *Store) Create(ctx context.Context, userID, fromSymbol, toSymbol string, target decimal.Decimal) (Record, error) {
	from, err := currency.Resolve(fromSymbol)
	if err != nil {
		return Record{}, err
	}
	to, err := currency.Resolve(toSymbol)
	if err != nil {
		return Record{}, err
	}
	if target.Sign() <= 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}

	now := s.now().UTC()
	rec := Record{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		From:      from.Symbol,
		To:        to.Symbol,
		Target:    target,
		CreatedAt: now,
	}

	_, err = s.store.Update(ctx, alertKeyPrefix+userID, s.opts.TTL, func(current string, found bool) (string, error) {
		records := s.decode(current, found)
		records = append(records, rec)
		payload, err := json.Marshal(records)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("create alert for %s: %w", userID, err)
	}
	return rec, nil
}

// List returns the user's alerts in creation order.
func (s *Store) List(ctx context.Context, userID string) ([]Record, error) {
	raw, err := s.store.Get(ctx, alertKeyPrefix+userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read alerts for %s: %w", userID, err)
	}
	return s.decode(raw, true), nil
}

// Users lists every user id with at least one stored alert.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	keys, err := s.store.Scan(ctx, alertKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan alert keys: %w", err)
	}
	users := make([]string, 0, len(keys))
	for _, key := range keys {
		users = append(users, strings.TrimPrefix(key, alertKeyPrefix))
	}
	return users, nil
}

// MarkFired flips the fired flag of one alert, by id, inside a store
// transaction. Marking an already-fired or vanished alert is a no-op.
func (s *Store) MarkFired(ctx context.Context, userID, alertID string) error {
	_, err := s.store.Update(ctx, alertKeyPrefix+userID, s.opts.TTL, func(current string, found bool) (string, error) {
		if !found {
			return "", storage.ErrSkipUpdate
		}
		records := s.decode(current, true)
		for i := range records {
			if records[i].ID == alertID {
				records[i].Fired = true
			}
		}
		payload, err := json.Marshal(records)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	})
	if errors.Is(err, storage.ErrSkipUpdate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark alert %s fired for %s: %w", alertID, userID, err)
	}
	return nil
}

func (s *Store) decode(raw string, found bool) []Record {
	if !found || raw == "" {
		return nil
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn().Err(err).Msg("corrupt alert list; starting fresh")
		return nil
	}
	return records
}
