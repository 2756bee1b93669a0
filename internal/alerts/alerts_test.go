package alerts

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "alerts.db"),
		Profile: database.ProfileLedger,
		Name:    "alerts",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db)
	require.NoError(t, err)
	return repo
}

func testAlert(id string) *domain.Alert {
	return &domain.Alert{
		AlertID:      id,
		ViolationKey: "RISK_001:TSLA:RISK",
		RuleID:       "RISK_001",
		Severity:     domain.SeverityCritical,
		Symbol:       "TSLA",
		Analysis:     "TSLA rated D; high-risk exposure 23% exceeds 20% limit.",
		PortfolioImpact: domain.Impact{
			Known:             true,
			ExposurePercent:   0.18,
			ExposureValue:     180000,
			AffectedPositions: 1,
			TotalValue:        1000000,
		},
		Recommendations: []string{"Reduce TSLA position to at or below 20% of portfolio"},
		EmailDraft:      "Dear Compliance Team, ...",
		Escalated:       true,
		Status:          domain.AlertOpen,
		ReasoningSteps:  []string{"analyzed violation", "assessed impact"},
		CreatedAt:       time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := testRepo(t)

	alert := testAlert("alert-001")
	require.NoError(t, repo.Save(alert))

	got, err := repo.Get("alert-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alert.ViolationKey, got.ViolationKey)
	assert.Equal(t, alert.Recommendations, got.Recommendations)
	assert.True(t, got.Escalated)
	assert.Equal(t, domain.AlertOpen, got.Status)

	missing, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_SaveIsIdempotent(t *testing.T) {
	repo := testRepo(t)

	alert := testAlert("alert-002")
	require.NoError(t, repo.Save(alert))
	require.NoError(t, repo.Save(alert))

	list, err := repo.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepository_List(t *testing.T) {
	repo := testRepo(t)

	a := testAlert("alert-a")
	a.CreatedAt = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	b := testAlert("alert-b")
	b.Symbol = "NVDA"
	b.Severity = domain.SeverityMedium
	b.CreatedAt = time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(a))
	require.NoError(t, repo.Save(b))

	t.Run("newest first", func(t *testing.T) {
		list, err := repo.List(ListFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "alert-b", list[0].AlertID)
	})

	t.Run("filter by symbol", func(t *testing.T) {
		list, err := repo.List(ListFilter{Symbol: "NVDA"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "alert-b", list[0].AlertID)
	})

	t.Run("filter by severity", func(t *testing.T) {
		list, err := repo.List(ListFilter{Severity: domain.SeverityCritical})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "alert-a", list[0].AlertID)
	})

	t.Run("limit", func(t *testing.T) {
		list, err := repo.List(ListFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.Save(testAlert("alert-003")))

	require.NoError(t, repo.UpdateStatus("alert-003", domain.AlertAcknowledged))

	got, err := repo.Get("alert-003")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertAcknowledged, got.Status)

	t.Run("missing alert errors", func(t *testing.T) {
		assert.Error(t, repo.UpdateStatus("ghost", domain.AlertResolved))
	})

	t.Run("status survives a later save of the same payload", func(t *testing.T) {
		// Finalization retries must not roll back an operator acknowledgment.
		require.NoError(t, repo.Save(testAlert("alert-003")))
		got, err := repo.Get("alert-003")
		require.NoError(t, err)
		assert.Equal(t, domain.AlertAcknowledged, got.Status)
	})
}

func TestRepository_CountByStatus(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.Save(testAlert("x1")))
	require.NoError(t, repo.Save(testAlert("x2")))
	require.NoError(t, repo.UpdateStatus("x2", domain.AlertResolved))

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["OPEN"])
	assert.Equal(t, 1, counts["RESOLVED"])
}

type recordingNotifier struct {
	mu    sync.Mutex
	seen  []string
	done  chan struct{}
	fail  bool
	calls int
}

func (n *recordingNotifier) Notify(_ context.Context, alert *domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.seen = append(n.seen, alert.AlertID)
	if n.done != nil {
		close(n.done)
		n.done = nil
	}
	if n.fail {
		return assert.AnError
	}
	return nil
}

func TestSink_DeliverPersistsAndNotifies(t *testing.T) {
	repo := testRepo(t)
	notifier := &recordingNotifier{done: make(chan struct{})}
	done := notifier.done
	sink := NewSink(repo, notifier, nil, zerolog.Nop())

	require.NoError(t, sink.Deliver(context.Background(), testAlert("alert-sink-1")))

	got, err := repo.Get("alert-sink-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was never dispatched")
	}
}

func TestSink_NonEscalatedAlertIsDashboardOnly(t *testing.T) {
	repo := testRepo(t)
	notifier := &recordingNotifier{}
	sink := NewSink(repo, notifier, nil, zerolog.Nop())

	alert := testAlert("alert-sink-quiet")
	alert.Severity = domain.SeverityLow
	alert.Escalated = false

	require.NoError(t, sink.Deliver(context.Background(), alert))

	// The alert is persisted for the dashboard but never handed to the
	// notification collaborator.
	got, err := repo.Get("alert-sink-quiet")
	require.NoError(t, err)
	require.NotNil(t, got)

	time.Sleep(100 * time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Zero(t, notifier.calls)
}

func TestSink_NotifierFailureDoesNotFailDelivery(t *testing.T) {
	repo := testRepo(t)
	notifier := &recordingNotifier{fail: true, done: make(chan struct{})}
	done := notifier.done
	sink := NewSink(repo, notifier, nil, zerolog.Nop())

	require.NoError(t, sink.Deliver(context.Background(), testAlert("alert-sink-2")))

	<-done
	got, err := repo.Get("alert-sink-2")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
