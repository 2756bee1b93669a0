package portfolio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// Provider serves the current portfolio snapshot to rule evaluation and
// workflows. Readers always see a complete snapshot; an upload swaps the
// current pointer atomically and never mutates a snapshot in place.
type Provider struct {
	repo *Repository
	log  zerolog.Logger

	mu      sync.RWMutex
	current *domain.PortfolioSnapshot
}

// NewProvider loads the latest persisted snapshot (if any) and serves it.
func NewProvider(repo *Repository, log zerolog.Logger) (*Provider, error) {
	p := &Provider{
		repo: repo,
		log:  log.With().Str("component", "portfolio_provider").Logger(),
	}

	snap, err := repo.Latest()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	p.current = snap

	if snap != nil {
		p.log.Info().Time("as_of", snap.AsOf).Int("positions", len(snap.Positions)).Msg("Restored portfolio snapshot")
	} else {
		p.log.Warn().Msg("No portfolio snapshot available, portfolio rules will be skipped")
	}
	return p, nil
}

// Current returns the current snapshot, or nil when none has been uploaded.
// Callers must treat the snapshot as read-only.
func (p *Provider) Current() *domain.PortfolioSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Update validates, persists and installs a new snapshot.
func (p *Provider) Update(snap *domain.PortfolioSnapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	if err := p.repo.Append(snap); err != nil {
		return err
	}

	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()

	p.log.Info().
		Time("as_of", snap.AsOf).
		Float64("total_value", snap.TotalValue).
		Int("positions", len(snap.Positions)).
		Msg("Portfolio snapshot updated")
	return nil
}

func validateSnapshot(snap *domain.PortfolioSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if snap.TotalValue < 0 {
		return fmt.Errorf("snapshot has negative total value %f", snap.TotalValue)
	}
	for sym, pos := range snap.Positions {
		if pos.Symbol != sym {
			return fmt.Errorf("position keyed %s carries symbol %s", sym, pos.Symbol)
		}
		if pos.PercentOfPortfolio < 0 || pos.PercentOfPortfolio > 1 {
			return fmt.Errorf("position %s has percent_of_portfolio %f outside [0,1]", sym, pos.PercentOfPortfolio)
		}
	}
	return nil
}
