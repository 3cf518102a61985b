package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bitcurrency-bot/internal/notify"
	"bitcurrency-bot/internal/storage"
)

const invoiceKeyPrefix = "invoice:"

// ErrAlreadySubscribed reports a subscription request from a user who
// already holds one.
var ErrAlreadySubscribed = errors.New("payment: already subscribed")

// ErrPaymentPending reports a second subscription request while an invoice
// is still open.
var ErrPaymentPending = errors.New("payment: invoice already pending")

// InvoiceAPI is the slice of the gateway client the poller needs.
type InvoiceAPI interface {
	CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (Invoice, error)
	GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error)
}

// Granter flips a user into the unlimited tier.
type Granter interface {
	Subscribed(ctx context.Context, userID string) (bool, error)
	GrantSubscription(ctx context.Context, userID string) error
}

// RevenueRecorder accumulates settled subscription revenue.
type RevenueRecorder interface {
	RecordSubscription(ctx context.Context, amount decimal.Decimal) error
}

type pendingInvoice struct {
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Observer counts settled subscriptions. *metrics.Set satisfies it.
type Observer interface {
	SubscriptionSettled()
}

// GatewayOptions tune invoice issuance and polling.
type GatewayOptions struct {
	// Price is the subscription price in USDT.
	Price decimal.Decimal
	// PendingTTL expires abandoned invoices out of the store.
	PendingTTL time.Duration
	// CheckTimeout bounds one invoice status lookup.
	CheckTimeout time.Duration
	// Observer, when set, counts every settled subscription.
	Observer Observer
}

// Gateway issues subscription invoices and settles them on a poll timer.
type Gateway struct {
	client   InvoiceAPI
	store    storage.KV
	granter  Granter
	revenue  RevenueRecorder
	notifier notify.Notifier
	opts     GatewayOptions
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGateway constructs the gateway.
func NewGateway(client InvoiceAPI, store storage.KV, granter Granter, revenue RevenueRecorder, notifier notify.Notifier, opts GatewayOptions, logger zerolog.Logger) *Gateway {
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 24 * time.Hour
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 15 * time.Second
	}
	return &Gateway{
		client:   client,
		store:    store,
		granter:  granter,
		revenue:  revenue,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "payment_gateway").Logger(),
		now:      time.Now,
	}
}

// StartSubscription opens an invoice for the user and remembers it for the
// poller. The returned invoice carries the pay URL to hand to the user.
func (g *Gateway) StartSubscription(ctx context.Context, userID string) (Invoice, error) {
	subscribed, err := g.granter.Subscribed(ctx, userID)
	if err != nil {
		return Invoice{}, err
	}
	if subscribed {
		return Invoice{}, ErrAlreadySubscribed
	}

	if _, err := g.store.Get(ctx, invoiceKeyPrefix+userID); err == nil {
		return Invoice{}, ErrPaymentPending
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Invoice{}, fmt.Errorf("check pending invoice for %s: %w", userID, err)
	}

	invoice, err := g.client.CreateInvoice(ctx, g.opts.Price, "Unlimited conversion subscription")
	if err != nil {
		return Invoice{}, err
	}

	payload, err := json.Marshal(pendingInvoice{
		InvoiceID: invoice.ID,
		Amount:    g.opts.Price,
		CreatedAt: g.now().UTC(),
	})
	if err != nil {
		return Invoice{}, err
	}
	if err := g.store.Set(ctx, invoiceKeyPrefix+userID, string(payload), g.opts.PendingTTL); err != nil {
		return Invoice{}, fmt.Errorf("persist pending invoice for %s: %w", userID, err)
	}
	return invoice, nil
}

// Tick checks every pending invoice once. Paid invoices grant the
// subscription, book revenue, and notify the user; expired ones are
// dropped. A failing invoice is logged and retried on the next tick.
func (g *Gateway) Tick(ctx context.Context, _ time.Time) error {
	keys, err := g.store.Scan(ctx, invoiceKeyPrefix)
	if err != nil {
		return fmt.Errorf("scan pending invoices: %w", err)
	}

	for _, key := range keys {
		userID := strings.TrimPrefix(key, invoiceKeyPrefix)
		if err := g.settle(ctx, userID, key); err != nil {
			g.logger.Error().Err(err).Str("user", userID).Msg("invoice check failed")
		}
	}
	return nil
}

func (g *Gateway) settle(ctx context.Context, userID, key string) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.CheckTimeout)
	defer cancel()

	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var pending pendingInvoice
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		g.logger.Warn().Err(err).Str("user", userID).Msg("corrupt pending invoice; dropping")
		return g.store.Delete(ctx, key)
	}

	invoice, err := g.client.GetInvoice(ctx, pending.InvoiceID)
	if errors.Is(err, ErrInvoiceNotFound) {
		return g.store.Delete(ctx, key)
	}
	if err != nil {
		return err
	}

	switch invoice.Status {
	case StatusPaid:
		if err := g.granter.GrantSubscription(ctx, userID); err != nil {
			return fmt.Errorf("grant subscription: %w", err)
		}
		if err := g.revenue.RecordSubscription(ctx, pending.Amount); err != nil {
			g.logger.Error().Err(err).Str("user", userID).Msg("record revenue")
		}
		if err := g.store.Delete(ctx, key); err != nil {
			return err
		}
		if g.opts.Observer != nil {
			g.opts.Observer.SubscriptionSettled()
		}
		g.logger.Info().Str("user", userID).Int64("invoice", invoice.ID).Msg("subscription paid")
		if err := g.notifier.Notify(ctx, userID, "✅ Payment received. Your subscription is active."); err != nil {
			g.logger.Error().Err(err).Str("user", userID).Msg("subscription notification failed")
		}
	case StatusExpired:
		g.logger.Info().Str("user", userID).Int64("invoice", invoice.ID).Msg("invoice expired")
		return g.store.Delete(ctx, key)
	}
	return nil
}
