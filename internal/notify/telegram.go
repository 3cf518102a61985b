// Package notify delivers user-facing messages. The evaluator treats
// delivery as fire-and-forget: a failed send is logged by the sink and never
// resurfaces into alert state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier is the transport-owned delivery boundary.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// TelegramNotifier pushes messages through the Telegram Bot API, addressing
// the chat by user id.
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram sink.
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Notify sends text to the user via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, userID, text string) error {
	payload := map[string]string{
		"chat_id": userID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Debug().Str("user_id", userID).Msg("notification delivered")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)

// LogNotifier writes notifications to the log only; it stands in when no
// Telegram token is configured, keeping the evaluator runnable in
// development.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs the logging sink.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "log_notifier").Logger()}
}

// Notify logs the would-be delivery.
func (n *LogNotifier) Notify(_ context.Context, userID, text string) error {
	n.logger.Info().Str("user_id", userID).Str("text", text).Msg("notification")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
