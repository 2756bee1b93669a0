// Package notify dispatches finalized alerts to compliance officers.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// Notifier delivers one alert to its audience. Implementations must be safe
// for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, alert *domain.Alert) error
}

// LogNotifier writes alerts to the structured log. It is the fallback when
// SMTP is not configured and the default in development mode.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "log_notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, alert *domain.Alert) error {
	evt := n.log.Info()
	if alert.Escalated {
		evt = n.log.Warn()
	}
	evt.
		Str("alert_id", alert.AlertID).
		Str("rule_id", alert.RuleID).
		Str("symbol", alert.Symbol).
		Str("severity", string(alert.Severity)).
		Str("analysis", alert.Analysis).
		Strs("recommendations", alert.Recommendations).
		Msg("ALERT NOTIFICATION")
	return nil
}
