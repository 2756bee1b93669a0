package portfolio

import (
	"path/filepath"
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
		Path:    filepath.Join(t.TempDir(), "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshots",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db)
	require.NoError(t, err)
	return repo
}

func sampleSnapshot(asOf time.Time) *domain.PortfolioSnapshot {
	return &domain.PortfolioSnapshot{
		AsOf:       asOf,
		TotalValue: 1000000,
		Positions: map[string]domain.Position{
			"AAPL": {Symbol: "AAPL", Quantity: 500, MarketValue: 90000, PercentOfPortfolio: 0.09, RiskRating: "B"},
			"TSLA": {Symbol: "TSLA", Quantity: 700, MarketValue: 180000, PercentOfPortfolio: 0.18, RiskRating: "D"},
		},
	}
}

func TestRepository_AppendAndLatest(t *testing.T) {
	repo := testRepo(t)

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := sampleSnapshot(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Append(first))

	second := sampleSnapshot(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	second.TotalValue = 1100000
	require.NoError(t, repo.Append(second))

	latest, err = repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.AsOf, latest.AsOf)
	assert.InDelta(t, 1100000, latest.TotalValue, 1e-9)
	assert.Equal(t, "D", latest.Positions["TSLA"].RiskRating)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRepository_PruneKeepsNewest(t *testing.T) {
	repo := testRepo(t)

	require.NoError(t, repo.Append(sampleSnapshot(time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, repo.Append(sampleSnapshot(time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))))

	// Cutoff in the far future would delete everything but the newest row.
	removed, err := repo.Prune(time.Now().Add(24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	latest, err := repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
}

func TestProvider_UpdateAndCurrent(t *testing.T) {
	repo := testRepo(t)
	prov, err := NewProvider(repo, zerolog.Nop())
	require.NoError(t, err)

	assert.Nil(t, prov.Current())

	snap := sampleSnapshot(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	require.NoError(t, prov.Update(snap))

	got := prov.Current()
	require.NotNil(t, got)
	assert.Equal(t, snap.AsOf, got.AsOf)

	// A fresh provider restores the persisted snapshot.
	restored, err := NewProvider(repo, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, restored.Current())
	assert.Equal(t, snap.AsOf, restored.Current().AsOf)
}

func TestProvider_UpdateRejectsInvalid(t *testing.T) {
	repo := testRepo(t)
	prov, err := NewProvider(repo, zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		name string
		snap *domain.PortfolioSnapshot
	}{
		{"nil snapshot", nil},
		{"negative total", &domain.PortfolioSnapshot{TotalValue: -1}},
		{
			"mismatched position key",
			&domain.PortfolioSnapshot{
				TotalValue: 100,
				Positions:  map[string]domain.Position{"AAPL": {Symbol: "MSFT"}},
			},
		},
		{
			"percent out of range",
			&domain.PortfolioSnapshot{
				TotalValue: 100,
				Positions:  map[string]domain.Position{"AAPL": {Symbol: "AAPL", PercentOfPortfolio: 1.5}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, prov.Update(tt.snap))
		})
	}

	assert.Nil(t, prov.Current(), "invalid uploads must not install")
}

func TestProvider_OldSnapshotStillServed(t *testing.T) {
	// Staleness of the portfolio snapshot does not invalidate it; rules use
	// the last known portfolio until a newer upload arrives.
	repo := testRepo(t)
	prov, err := NewProvider(repo, zerolog.Nop())
	require.NoError(t, err)

	old := sampleSnapshot(time.Now().Add(-48 * time.Hour))
	require.NoError(t, prov.Update(old))

	require.NotNil(t, prov.Current())
}
