package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailNotifier sends alerts over plain SMTP.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     sendMailFunc
	logger   zerolog.Logger
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

func NewEmailNotifier(host string, port int, username, password, from string, to []string, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
		logger:   logger.With().Str("component", "alert_email").Logger(),
	}
}

func (n *EmailNotifier) Name() string { return "email" }

// emailOverride is the per-rule config this channel understands.
type emailOverride struct {
	To []string `json:"to"`
}

func (n *EmailNotifier) Notify(ctx context.Context, note Notification, cfg json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to := n.to
	if len(cfg) > 0 {
		var override emailOverride
		if err := json.Unmarshal(cfg, &override); err != nil {
			return fmt.Errorf("email channel config: %w", err)
		}
		if len(override.To) > 0 {
			to = override.To
		}
	}
	if len(to) == 0 {
		return fmt.Errorf("email: no recipients configured")
	}

	subject := fmt.Sprintf("Pair alert: %s (z=%.2f)", note.RuleName, note.ZScore)
	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("\r\n")
	msg.WriteString(renderMessage(note))

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := n.send(addr, auth, n.from, to, []byte(msg.String())); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().
		Str("rule", note.RuleName).
		Int("recipients", len(to)).
		Msg("alert sent (email)")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
