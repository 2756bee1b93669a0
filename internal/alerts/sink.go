package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
	"github.com/wealthsentinel/sentinel/internal/events"
	"github.com/wealthsentinel/sentinel/internal/notify"
)

const (
	maxPersistAttempts = 5
	baseRetryDelay     = 500 * time.Millisecond
)

// Sink is the terminal stage of the alert pipeline: persist to the ledger,
// then notify if the alert was escalated. Persistence retries with
// exponential backoff; notification is fire-and-forget and never blocks or
// fails the pipeline.
type Sink struct {
	repo     *Repository
	notifier notify.Notifier
	events   *events.Manager
	log      zerolog.Logger
}

func NewSink(repo *Repository, notifier notify.Notifier, ev *events.Manager, log zerolog.Logger) *Sink {
	return &Sink{
		repo:     repo,
		notifier: notifier,
		events:   ev,
		log:      log.With().Str("component", "alert_sink").Logger(),
	}
}

// Deliver persists the alert and dispatches notification. Persist failure
// after all retries is returned to the caller; the alert is not silently
// dropped.
func (s *Sink) Deliver(ctx context.Context, alert *domain.Alert) error {
	if err := s.persistWithRetry(ctx, alert); err != nil {
		return err
	}

	s.log.Info().
		Str("alert_id", alert.AlertID).
		Str("rule_id", alert.RuleID).
		Str("symbol", alert.Symbol).
		Str("severity", string(alert.Severity)).
		Bool("escalated", alert.Escalated).
		Msg("Compliance alert recorded")

	if s.events != nil {
		s.events.Emit(events.AlertCreated, "alert_sink", map[string]interface{}{
			"alert_id":  alert.AlertID,
			"rule_id":   alert.RuleID,
			"severity":  string(alert.Severity),
			"escalated": alert.Escalated,
		})
	}

	// Only escalated alerts reach the notification collaborator; the rest
	// stay dashboard-only. Notification failures are logged, never
	// propagated: the ledger row is already durable and the operator UI
	// reads from it.
	if alert.Escalated {
		go func() {
			if err := s.notifier.Notify(context.Background(), alert); err != nil {
				s.log.Warn().Err(err).Str("alert_id", alert.AlertID).Msg("Alert notification failed")
			}
		}()
	}

	return nil
}

func (s *Sink) persistWithRetry(ctx context.Context, alert *domain.Alert) error {
	var lastErr error
	delay := baseRetryDelay

	for attempt := 1; attempt <= maxPersistAttempts; attempt++ {
		if err := s.repo.Save(alert); err == nil {
			return nil
		} else {
			lastErr = err
		}

		s.log.Warn().
			Err(lastErr).
			Str("alert_id", alert.AlertID).
			Int("attempt", attempt).
			Msg("Alert persistence failed, retrying")

		if attempt == maxPersistAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("alert persistence aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("failed to persist alert %s after %d attempts: %w", alert.AlertID, maxPersistAttempts, lastErr)
}
