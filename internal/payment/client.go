// Package payment integrates the Crypto Pay invoice gateway: creating
// subscription invoices and polling them until they settle.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const tokenHeader = "Crypto-Pay-API-Token"

// Invoice statuses reported by the gateway.
const (
	StatusActive  = "active"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// ErrInvoiceNotFound reports an invoice id the gateway no longer knows.
var ErrInvoiceNotFound = errors.New("payment: invoice not found")

// Invoice is the gateway's view of one payment request.
type Invoice struct {
	ID     int64  `json:"invoice_id"`
	Status string `json:"status"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	PayURL string `json:"pay_url"`
}

// ClientOptions configure the HTTP client.
type ClientOptions struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
}

// Client talks to the Crypto Pay HTTP API.
type Client struct {
	opts   ClientOptions
	http   *http.Client
	logger zerolog.Logger
}

// NewClient constructs a gateway client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "payment_client").Logger(),
	}
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

// CreateInvoice opens a USDT invoice for the given amount.
func (c *Client) CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (Invoice, error) {
	body, err := json.Marshal(map[string]string{
		"asset":       "USDT",
		"amount":      amount.String(),
		"description": description,
	})
	if err != nil {
		return Invoice{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/createInvoice", bytes.NewReader(body))
	if err != nil {
		return Invoice{}, fmt.Errorf("build createInvoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.opts.APIToken)

	var invoice Invoice
	if err := c.do(req, &invoice); err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return invoice, nil
}

// GetInvoice fetches the current state of a single invoice.
func (c *Client) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	url := c.opts.BaseURL + "/api/getInvoices?invoice_ids=" + strconv.FormatInt(invoiceID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Invoice{}, fmt.Errorf("build getInvoices request: %w", err)
	}
	req.Header.Set(tokenHeader, c.opts.APIToken)

	var result struct {
		Items []Invoice `json:"items"`
	}
	if err := c.do(req, &result); err != nil {
		return Invoice{}, fmt.Errorf("get invoice %d: %w", invoiceID, err)
	}
	if len(result.Items) == 0 {
		return Invoice{}, fmt.Errorf("%w: %d", ErrInvoiceNotFound, invoiceID)
	}
	return result.Items[0], nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("gateway rejected the request")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode gateway result: %w", err)
	}
	return nil
}
