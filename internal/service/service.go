// Package service orchestrates the conversion flow: quota, rate
// resolution, history, statistics, alerts, and subscriptions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/alert"
	"bitcurrency-bot/internal/currency"
	"bitcurrency-bot/internal/history"
	"bitcurrency-bot/internal/metrics"
	"bitcurrency-bot/internal/payment"
	"bitcurrency-bot/internal/quota"
	"bitcurrency-bot/internal/rates"
	"bitcurrency-bot/internal/stats"
)

// ErrInvalidAmount reports a non-positive conversion amount.
var ErrInvalidAmount = errors.New("service: amount must be positive")

// ErrPaymentsDisabled reports a subscription attempt with no gateway
// configured.
var ErrPaymentsDisabled = errors.New("service: payments are not enabled")

// ErrNotAdmin reports a statistics request from a non-admin user.
var ErrNotAdmin = errors.New("service: admin only")

// RateConverter is the slice of the rate engine the service needs.
type RateConverter interface {
	Convert(ctx context.Context, from, to currency.Descriptor, amount decimal.Decimal) (decimal.Decimal, rates.Quote, error)
}

// ConvertResult is one settled conversion.
type ConvertResult struct {
	From      currency.Descriptor
	To        currency.Descriptor
	Amount    decimal.Decimal
	Result    decimal.Decimal
	Formatted string
	Quote     rates.Quote
	// Remaining is the user's quota after this request: a number, or the
	// unlimited marker for admins and subscribers.
	Remaining string
}

// Service exposes the bot's user-facing operations.
type Service struct {
	engine   RateConverter
	ledger   *quota.Ledger
	history  *history.Log
	alerts   *alert.Store
	counters *stats.Counters
	gateway  *payment.Gateway
	metrics  *metrics.Set
	logger   zerolog.Logger
}

// New constructs the service. gateway and set may be nil when payments or
// metrics are disabled.
func New(engine RateConverter, ledger *quota.Ledger, hist *history.Log, alerts *alert.Store, counters *stats.Counters, gateway *payment.Gateway, set *metrics.Set, logger zerolog.Logger) *Service {
	return &Service{
		engine:   engine,
		ledger:   ledger,
		history:  hist,
		alerts:   alerts,
		counters: counters,
		gateway:  gateway,
		metrics:  set,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Convert runs the full conversion flow for one request. The quota is
// consumed before resolution, so a failed lookup still costs a request.
func (s *Service) Convert(ctx context.Context, userID, fromSymbol, toSymbol string, amount decimal.Decimal) (ConvertResult, error) {
	from, err := currency.Resolve(fromSymbol)
	if err != nil {
		return ConvertResult{}, err
	}
	to, err := currency.Resolve(toSymbol)
	if err != nil {
		return ConvertResult{}, err
	}
	if amount.Sign() <= 0 {
		return ConvertResult{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	allowed, remaining, err := s.ledger.Check(ctx, userID)
	if err != nil {
		return ConvertResult{}, err
	}
	if !allowed {
		s.metrics.QuotaRejected()
		s.metrics.Conversion("quota_exceeded")
		return ConvertResult{}, fmt.Errorf("%w: %d per day", quota.ErrLimitExceeded, s.ledger.Limit())
	}

	// Admins and subscribers short-circuit the ledger entirely: their
	// counters are never incremented and they always see the unlimited
	// marker.
	if remaining != quota.Unlimited {
		used, err := s.ledger.Record(ctx, userID)
		if err != nil {
			return ConvertResult{}, err
		}
		remaining = s.ledger.Remaining(userID, used)
	}

	result, quote, err := s.engine.Convert(ctx, from, to, amount)
	if err != nil {
		s.metrics.Conversion("error")
		return ConvertResult{}, err
	}

	if err := s.history.Append(ctx, userID, history.Entry{
		Time:   time.Now().UTC(),
		From:   from.Symbol,
		To:     to.Symbol,
		Amount: amount,
		Result: result,
	}); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("history append failed")
	}
	if err := s.counters.RecordRequest(ctx, userID, "convert"); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("stats update failed")
	}

	s.metrics.Conversion("ok")
	s.logger.Info().
		Str("user", userID).
		Str("from", from.Symbol).Str("to", to.Symbol).
		Str("amount", amount.String()).
		Str("rate", quote.Rate.String()).
		Str("source", quote.Source()).
		Msg("conversion settled")

	return ConvertResult{
		From:      from,
		To:        to,
		Amount:    amount,
		Result:    result,
		Formatted: to.Format(result),
		Quote:     quote,
		Remaining: remaining,
	}, nil
}

// CreateAlert registers a standing price alert.
func (s *Service) CreateAlert(ctx context.Context, userID, fromSymbol, toSymbol string, target decimal.Decimal) (alert.Record, error) {
	rec, err := s.alerts.Create(ctx, userID, fromSymbol, toSymbol, target)
	if err != nil {
		return alert.Record{}, err
	}
	if err := s.counters.RecordRequest(ctx, userID, "alert"); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("stats update failed")
	}
	return rec, nil
}

// Alerts lists the user's standing alerts.
func (s *Service) Alerts(ctx context.Context, userID string) ([]alert.Record, error) {
	return s.alerts.List(ctx, userID)
}

// History lists the user's past conversions, most recent first.
func (s *Service) History(ctx context.Context, userID string) ([]history.Entry, error) {
	return s.history.List(ctx, userID)
}

// Subscribe opens a subscription invoice for the user.
func (s *Service) Subscribe(ctx context.Context, userID string) (payment.Invoice, error) {
	if s.gateway == nil {
		return payment.Invoice{}, ErrPaymentsDisabled
	}
	invoice, err := s.gateway.StartSubscription(ctx, userID)
	if err != nil {
		return payment.Invoice{}, err
	}
	if err := s.counters.RecordRequest(ctx, userID, "subscribe"); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("stats update failed")
	}
	return invoice, nil
}

// Stats returns the aggregate usage snapshot. Admins only.
func (s *Service) Stats(ctx context.Context, userID string) (stats.Snapshot, error) {
	if !s.ledger.IsAdmin(userID) {
		return stats.Snapshot{}, ErrNotAdmin
	}
	return s.counters.Read(ctx)
}

// Currencies lists every supported symbol.
func (s *Service) Currencies() []string {
	return currency.Symbols()
}
