package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// SMTPNotifier emails alert drafts to the configured compliance address.
// The account password is resolved at send time through the password func
// and is never held on the struct.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	to       string
	password func() string
	log      zerolog.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, username, to string, password func() string, log zerolog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		username: username,
		to:       to,
		password: password,
		log:      log.With().Str("component", "smtp_notifier").Logger(),
		send:     smtp.SendMail,
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, alert *domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Compliance Alert: %s [%s]", alert.RuleID, alert.Severity)
	if alert.Escalated {
		subject = "URGENT - " + subject
	}

	body := alert.EmailDraft
	if body == "" {
		body = alert.Analysis
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.username)
	fmt.Fprintf(&msg, "To: %s\r\n", n.to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.username, n.password(), n.host)

	if err := n.send(addr, auth, n.username, []string{n.to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send alert email for %s: %w", alert.AlertID, err)
	}

	n.log.Info().Str("alert_id", alert.AlertID).Str("to", n.to).Msg("Alert email sent")
	return nil
}
