package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

func testAlert(escalated bool) *domain.Alert {
	return &domain.Alert{
		AlertID:      "a1b2c3",
		ViolationKey: "VOL_001:NVDA:VOLATILITY",
		RuleID:       "VOL_001",
		Severity:     domain.SeverityHigh,
		Symbol:       "NVDA",
		Analysis:     "NVDA moved -18% in one session.",
		EmailDraft:   "Dear Compliance Team,\n\nNVDA breached the volatility threshold.",
		Escalated:    escalated,
		Status:       domain.AlertOpen,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	assert.NoError(t, n.Notify(context.Background(), testAlert(false)))
}

func TestSMTPNotifier_BuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	passwordCalls := 0

	n := NewSMTPNotifier("mail.example.com", 587, "alerts@example.com", "compliance@example.com",
		func() string { passwordCalls++; return "secret" }, zerolog.Nop())
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), testAlert(false)))

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"compliance@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Compliance Alert: VOL_001 [HIGH]")
	assert.Contains(t, string(gotMsg), "NVDA breached the volatility threshold")
	assert.Equal(t, 1, passwordCalls, "password resolved once per send")
}

func TestSMTPNotifier_EscalatedSubject(t *testing.T) {
	var gotMsg []byte
	n := NewSMTPNotifier("mail.example.com", 587, "alerts@example.com", "compliance@example.com",
		func() string { return "secret" }, zerolog.Nop())
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), testAlert(true)))
	assert.True(t, strings.Contains(string(gotMsg), "Subject: URGENT - Compliance Alert"))
}

func TestSMTPNotifier_CancelledContext(t *testing.T) {
	n := NewSMTPNotifier("mail.example.com", 587, "a@example.com", "b@example.com",
		func() string { return "" }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, n.Notify(ctx, testAlert(false)))
}

func TestSMTPNotifier_EmptyDraftFallsBackToAnalysis(t *testing.T) {
	var gotMsg []byte
	n := NewSMTPNotifier("mail.example.com", 587, "a@example.com", "b@example.com",
		func() string { return "" }, zerolog.Nop())
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	alert := testAlert(false)
	alert.EmailDraft = ""
	require.NoError(t, n.Notify(context.Background(), alert))
	assert.Contains(t, string(gotMsg), "moved -18% in one session")
}
