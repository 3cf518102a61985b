// Package quota tracks per-user daily request counts and the entitlements
// that bypass them.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bitcurrency-bot/internal/storage"
)

const (
	quotaKeyPrefix = "quota:"
	subKeyPrefix   = "sub:"

	// Unlimited is the remaining-quota marker for admins and subscribers.
	Unlimited = "∞"

	dayFormat = "2006-01-02"
)

// ErrLimitExceeded reports an exhausted daily quota.
var ErrLimitExceeded = errors.New("quota: daily limit exceeded")

// record is the persisted per-user counter. lastReset always holds the date
// of the most recent request; a date change resets the count.
type record struct {
	Requests  int    `json:"requests"`
	LastReset string `json:"last_reset"`
}

// Options tune the ledger.
type Options struct {
	DailyLimit int
	AdminIDs   []string
	// RecordTTL ages out idle user records; zero keeps them forever.
	RecordTTL time.Duration
}

// Ledger answers "may this user convert right now" and owns the consumption
// counter. It never talks to the payment gateway; subscriptions arrive via
// GrantSubscription.
type Ledger struct {
	store  storage.KV
	opts   Options
	admins map[string]struct{}
	logger zerolog.Logger
	now    func() time.Time
}

// NewLedger constructs the ledger.
func NewLedger(store storage.KV, opts Options, logger zerolog.Logger) *Ledger {
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 5
	}
	admins := make(map[string]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Ledger{
		store:  store,
		opts:   opts,
		admins: admins,
		logger: logger.With().Str("component", "quota_ledger").Logger(),
		now:    time.Now,
	}
}

// Check reports whether the user may issue a request and how many remain
// today. Admins and subscribers short-circuit to Unlimited. A store failure
// fails closed: unbounded free usage is worse than a denied request.
func (l *Ledger) Check(ctx context.Context, userID string) (bool, string, error) {
	if _, ok := l.admins[userID]; ok {
		return true, Unlimited, nil
	}

	subscribed, err := l.Subscribed(ctx, userID)
	if err != nil {
		l.logger.Error().Err(err).Str("user_id", userID).Msg("subscription read failed; denying")
		return false, "0", err
	}
	if subscribed {
		return true, Unlimited, nil
	}

	raw, err := l.store.Get(ctx, quotaKeyPrefix+userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		l.logger.Error().Err(err).Str("user_id", userID).Msg("quota read failed; denying")
		return false, "0", err
	}

	rec := l.decode(raw)
	today := l.now().Format(dayFormat)
	if rec.LastReset != today {
		rec = record{Requests: 0, LastReset: today}
	}

	remaining := l.opts.DailyLimit - rec.Requests
	if remaining <= 0 {
		return false, "0", nil
	}
	return true, strconv.Itoa(remaining), nil
}

// Record consumes one request and returns the updated count for today.
// The increment-or-reset runs inside a single store transaction, so two
// concurrent requests from the same user cannot both observe a stale count.
func (l *Ledger) Record(ctx context.Context, userID string) (int, error) {
	today := l.now().Format(dayFormat)
	var used int
	_, err := l.store.Update(ctx, quotaKeyPrefix+userID, l.opts.RecordTTL, func(current string, found bool) (string, error) {
		rec := record{LastReset: today}
		if found {
			rec = l.decode(current)
			if rec.LastReset != today {
				rec = record{LastReset: today}
			}
		}
		rec.Requests++
		used = rec.Requests
		payload, err := json.Marshal(rec)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	})
	if err != nil {
		return 0, fmt.Errorf("record request for %s: %w", userID, err)
	}
	return used, nil
}

// Remaining formats what is left after `used` consumptions today.
func (l *Ledger) Remaining(userID string, used int) string {
	if l.IsAdmin(userID) {
		return Unlimited
	}
	left := l.opts.DailyLimit - used
	if left < 0 {
		left = 0
	}
	return strconv.Itoa(left)
}

// IsAdmin reports membership in the static admin allow-list.
func (l *Ledger) IsAdmin(userID string) bool {
	_, ok := l.admins[userID]
	return ok
}

// Subscribed reads the persistent subscription flag.
func (l *Ledger) Subscribed(ctx context.Context, userID string) (bool, error) {
	value, err := l.store.Get(ctx, subKeyPrefix+userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// GrantSubscription flips the flag on, idempotently and forever. It is the
// only write path for entitlements; the payment poller calls it once a
// gateway confirmation arrives.
func (l *Ledger) GrantSubscription(ctx context.Context, userID string) error {
	if err := l.store.Set(ctx, subKeyPrefix+userID, "1", 0); err != nil {
		return fmt.Errorf("grant subscription for %s: %w", userID, err)
	}
	l.logger.Info().Str("user_id", userID).Msg("subscription granted")
	return nil
}

// Limit exposes the configured daily cap.
func (l *Ledger) Limit() int { return l.opts.DailyLimit }

func (l *Ledger) decode(raw string) record {
	var rec record
	if raw == "" {
		return rec
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		l.logger.Warn().Err(err).Msg("corrupt quota record; starting fresh")
		return record{}
	}
	if rec.Requests < 0 {
		rec.Requests = 0
	}
	return rec
}
