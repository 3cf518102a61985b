package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bitcurrency-bot/internal/currency"
	"bitcurrency-bot/internal/notify"
	"bitcurrency-bot/internal/rates"
)

// RateSource resolves a pair's current rate. *rates.Engine satisfies it.
type RateSource interface {
	Resolve(ctx context.Context, from, to currency.Descriptor) (rates.Quote, error)
}

// Observer counts fired alerts. *metrics.Set satisfies it.
type Observer interface {
	AlertFired()
}

// EvaluatorOptions tune a sweep.
type EvaluatorOptions struct {
	// CheckTimeout bounds the rate lookup plus notification of one alert.
	CheckTimeout time.Duration
	// Observer, when set, counts every fired alert.
	Observer Observer
}

// Evaluator walks every stored alert on each tick and fires the ones whose
// pair trades at or below the target. A fired alert is marked before the
// notification goes out, so each alert notifies at most once.
type Evaluator struct {
	store    *Store
	source   RateSource
	notifier notify.Notifier
	opts     EvaluatorOptions
	logger   zerolog.Logger
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(store *Store, source RateSource, notifier notify.Notifier, opts EvaluatorOptions, logger zerolog.Logger) *Evaluator {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 10 * time.Second
	}
	return &Evaluator{
		store:    store,
		source:   source,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "alert_evaluator").Logger(),
	}
}

// Tick runs one sweep. A failing alert is logged and skipped; it never
// blocks the rest of the sweep.
func (e *Evaluator) Tick(ctx context.Context, _ time.Time) error {
	users, err := e.store.Users(ctx)
	if err != nil {
		return err
	}

	var checked, fired int
	for _, userID := range users {
		records, err := e.store.List(ctx, userID)
		if err != nil {
			e.logger.Error().Err(err).Str("user", userID).Msg("load alerts")
			continue
		}
		for _, rec := range records {
			if rec.Fired {
				continue
			}
			checked++
			didFire, err := e.check(ctx, userID, rec)
			if err != nil {
				e.logger.Error().Err(err).
					Str("user", userID).
					Str("from", rec.From).
					Str("to", rec.To).
					Msg("alert check failed")
				continue
			}
			if didFire {
				fired++
			}
		}
	}

	e.logger.Debug().Int("checked", checked).Int("fired", fired).Msg("alert sweep complete")
	return nil
}

func (e *Evaluator) check(ctx context.Context, userID string, rec Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CheckTimeout)
	defer cancel()

	from, err := currency.Resolve(rec.From)
	if err != nil {
		return false, err
	}
	to, err := currency.Resolve(rec.To)
	if err != nil {
		return false, err
	}

	quote, err := e.source.Resolve(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("resolve %s/%s: %w", rec.From, rec.To, err)
	}
	if quote.Rate.GreaterThan(rec.Target) {
		return false, nil
	}

	// Mark before notifying: a crashed notification must not repeat on
	// the next tick.
	if err := e.store.MarkFired(ctx, userID, rec.ID); err != nil {
		return false, err
	}
	if e.opts.Observer != nil {
		e.opts.Observer.AlertFired()
	}

	text := fmt.Sprintf("🔔 %s → %s is now %s (target %s)",
		from.Code, to.Code, to.Format(quote.Rate), to.Format(rec.Target))
	if err := e.notifier.Notify(ctx, userID, text); err != nil {
		e.logger.Error().Err(err).Str("user", userID).Msg("alert notification failed")
	}
	return true, nil
}
