package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier POSTs the alert as JSON to a configured endpoint.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  zerolog.Logger
}

func NewWebhookNotifier(url string, headers map[string]string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_webhook").Logger(),
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// webhookOverride is the per-rule config this channel understands.
// Override headers are merged over the global ones, key by key.
type webhookOverride struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, note Notification, cfg json.RawMessage) error {
	url := n.url
	headers := n.headers
	if len(cfg) > 0 {
		var override webhookOverride
		if err := json.Unmarshal(cfg, &override); err != nil {
			return fmt.Errorf("webhook channel config: %w", err)
		}
		if override.URL != "" {
			url = override.URL
		}
		if len(override.Headers) > 0 {
			merged := make(map[string]string, len(n.headers)+len(override.Headers))
			for k, v := range n.headers {
				merged[k] = v
			}
			for k, v := range override.Headers {
				merged[k] = v
			}
			headers = merged
		}
	}

	payload := map[string]any{
		"rule":         note.RuleName,
		"symbol1":      note.Symbol1,
		"symbol2":      note.Symbol2,
		"timeframe":    note.Timeframe,
		"zscore":       note.ZScore,
		"threshold":    note.Threshold,
		"direction":    string(note.Direction),
		"signal":       note.Signal,
		"hedge_ratio":  note.HedgeRatio,
		"correlation":  note.Correlation,
		"spread_mean":  note.SpreadMean,
		"spread_std":   note.SpreadStd,
		"triggered_at": note.TriggeredAt.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook unexpected status: %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("rule", note.RuleName).
		Float64("zscore", note.ZScore).
		Msg("alert sent (webhook)")
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
