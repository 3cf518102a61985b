package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const binanceTickerPath = "/api/v3/ticker/price"

// BinanceOptions parameterise the Binance ticker client.
type BinanceOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Binance queries the Binance spot ticker endpoint.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinance constructs a Binance provider.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies the provider in quote sources.
func (b *Binance) Name() string { return "binance" }

type binanceTickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Price fetches the last price for the concatenated pair code, e.g. BTCUSDT.
func (b *Binance) Price(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	symbol := base + quote
	url := fmt.Sprintf("%s%s?symbol=%s", b.baseURL, binanceTickerPath, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create binance request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("binance request %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("binance %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var ticker binanceTickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode binance response for %s: %w", symbol, err)
	}

	price, err := parsePositivePrice(ticker.Price)
	if err != nil {
		b.logger.Warn().Str("symbol", symbol).Str("raw", ticker.Price).Msg("binance returned invalid price")
		return decimal.Decimal{}, fmt.Errorf("binance %s: %w", symbol, err)
	}
	return price, nil
}

// parsePositivePrice is the single trust-the-network point: every upstream
// price string passes through here before it is used.
func parsePositivePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed price %q: %w", raw, err)
	}
	if price.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("non-positive price %q", raw)
	}
	return price, nil
}

var _ Provider = (*Binance)(nil)
