// Package marketdata normalizes raw market feed ticks and maintains
// per-symbol return statistics.
package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// RawTick is the wire format published by the market feed.
type RawTick struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	PercentChange float64 `json:"change_pct"`
	Volume        int64   `json:"volume"`
	Sector        string  `json:"sector,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// Normalize converts a raw tick into a MarketFact. Malformed ticks return an
// error so the caller can skip the single offending item and continue.
func Normalize(tick RawTick) (domain.MarketFact, error) {
	symbol := strings.ToUpper(strings.TrimSpace(tick.Symbol))
	if symbol == "" {
		return domain.MarketFact{}, fmt.Errorf("tick has no symbol")
	}
	if tick.Price <= 0 {
		return domain.MarketFact{}, fmt.Errorf("tick for %s has non-positive price %f", symbol, tick.Price)
	}

	observedAt := time.Now().UTC()
	if tick.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, tick.Timestamp)
		if err != nil {
			return domain.MarketFact{}, fmt.Errorf("tick for %s has unparseable timestamp %q: %w", symbol, tick.Timestamp, err)
		}
		observedAt = parsed.UTC()
	}

	return domain.MarketFact{
		Symbol: symbol,
		Price:  tick.Price,
		// Feeds publish percent points (e.g. -18.0); rules and thresholds
		// work in fractions (-0.18).
		PercentChange: tick.PercentChange / 100,
		Volume:        tick.Volume,
		Sector:        tick.Sector,
		ObservedAt:    observedAt,
	}, nil
}
