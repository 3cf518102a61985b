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

const whitebitTickerPath = "/api/v1/public/ticker"

// WhiteBITOptions parameterise the WhiteBIT ticker client.
type WhiteBITOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// WhiteBIT queries the WhiteBIT public ticker endpoint as the secondary
// provider in the resolution chain.
type WhiteBIT struct {
	opts    WhiteBITOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewWhiteBIT constructs a WhiteBIT provider.
func NewWhiteBIT(opts WhiteBITOptions, logger zerolog.Logger) *WhiteBIT {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://whitebit.com"
	}

	return &WhiteBIT{
		opts:    opts,
		logger:  logger.With().Str("component", "whitebit_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies the provider in quote sources.
func (w *WhiteBIT) Name() string { return "whitebit" }

type whitebitTickerResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Last string `json:"last"`
	} `json:"result"`
	Message any `json:"message"`
}

// Price fetches the last trade price for the underscored market code,
// e.g. BTC_USDT.
func (w *WhiteBIT) Price(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	market := base + "_" + quote
	url := fmt.Sprintf("%s%s?market=%s", w.baseURL, whitebitTickerPath, market)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create whitebit request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(w.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("whitebit request %s: %w", market, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("whitebit %s: unexpected status %d", market, resp.StatusCode)
	}

	var ticker whitebitTickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode whitebit response for %s: %w", market, err)
	}
	if !ticker.Success {
		return decimal.Decimal{}, fmt.Errorf("whitebit %s: %w", market, errPairNotQuoted)
	}

	price, err := parsePositivePrice(ticker.Result.Last)
	if err != nil {
		w.logger.Warn().Str("market", market).Str("raw", ticker.Result.Last).Msg("whitebit returned invalid price")
		return decimal.Decimal{}, fmt.Errorf("whitebit %s: %w", market, err)
	}
	return price, nil
}

var _ Provider = (*WhiteBIT)(nil)
