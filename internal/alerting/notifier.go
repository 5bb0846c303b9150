package alerting

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

// Notification carries everything a channel needs to render one alert.
type Notification struct {
	RuleName    string
	Symbol1     string
	Symbol2     string
	Timeframe   string
	ZScore      float64
	Threshold   float64
	Direction   Direction
	Signal      string
	HedgeRatio  float64
	Correlation float64
	SpreadMean  float64
	SpreadStd   float64
	TriggeredAt time.Time
}

// Direction names which bound was breached.
type Direction string

const (
	DirectionUpper Direction = "upper"
	DirectionLower Direction = "lower"
)

// Notifier delivers one rendered alert over a single channel. cfg is
// the rule's opaque per-channel config blob; a notifier interprets its
// own fields and falls back to its global settings when cfg is empty.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, note Notification, cfg json.RawMessage) error
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// telegramOverride is the per-rule config this channel understands.
type telegramOverride struct {
	ChatID string `json:"chat_id"`
}

// Notify posts the rendered text via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification, cfg json.RawMessage) error {
	chatID := n.chatID
	if len(cfg) > 0 {
		var override telegramOverride
		if err := json.Unmarshal(cfg, &override); err != nil {
			return fmt.Errorf("telegram channel config: %w", err)
		}
		if override.ChatID != "" {
			chatID = override.ChatID
		}
	}

	payload := map[string]string{
		"chat_id": chatID,
		"text":    renderMessage(note),
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

	n.logger.Info().
		Str("rule", note.RuleName).
		Str("direction", string(note.Direction)).
		Float64("zscore", note.ZScore).
		Msg("alert sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Pair Alert] %s\n", note.RuleName))
	builder.WriteString(fmt.Sprintf("Pair: %s / %s (%s)\n", note.Symbol1, note.Symbol2, note.Timeframe))
	builder.WriteString(fmt.Sprintf("Z-score: %.4f (%s threshold %.2f)\n", note.ZScore, note.Direction, note.Threshold))
	if note.Signal != "" {
		builder.WriteString(fmt.Sprintf("Signal: %s\n", note.Signal))
	}
	builder.WriteString(fmt.Sprintf("Hedge ratio: %.6f\n", note.HedgeRatio))
	builder.WriteString(fmt.Sprintf("Correlation: %.4f\n", note.Correlation))
	builder.WriteString(fmt.Sprintf("Spread mean/std: %.6f / %.6f\n", note.SpreadMean, note.SpreadStd))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
