package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// basePrices seed the random walk for known symbols.
var basePrices = map[string]float64{
	"AAPL": 180.0, "MSFT": 380.0, "GOOGL": 140.0,
	"AMZN": 145.0, "TSLA": 250.0, "NVDA": 480.0,
	"META": 350.0, "JPM": 160.0, "BAC": 35.0, "WFC": 45.0,
}

// sectors maps known symbols to their sector labels.
var sectors = map[string]string{
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology",
	"AMZN": "Consumer Cyclical", "TSLA": "Automotive",
	"NVDA": "Technology", "META": "Technology",
	"JPM": "Financial", "BAC": "Financial", "WFC": "Financial",
}

// Simulator generates a random-walk market feed for a watchlist. It stands in
// for the live feed when no feed URL is configured, and matches the live
// feed's tick shape so downstream code cannot tell them apart.
type Simulator struct {
	watchlist []string
	interval  time.Duration
	rng       *rand.Rand
	log       zerolog.Logger

	mu         sync.Mutex
	priceCache map[string]float64
}

// NewSimulator creates a simulator for the given watchlist.
func NewSimulator(watchlist []string, interval time.Duration, log zerolog.Logger) *Simulator {
	return &Simulator{
		watchlist:  watchlist,
		interval:   interval,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		log:        log.With().Str("component", "market_simulator").Logger(),
		priceCache: make(map[string]float64),
	}
}

// Run emits one tick per watchlist symbol each cycle until the context is
// cancelled. Emission order within a cycle follows the watchlist.
func (s *Simulator) Run(ctx context.Context, emit func(RawTick)) {
	s.log.Info().Int("symbols", len(s.watchlist)).Dur("interval", s.interval).Msg("Starting simulated market feed")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Emit an initial cycle immediately so joins have market data at startup.
	s.cycle(emit)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Simulated market feed stopped")
			return
		case <-ticker.C:
			s.cycle(emit)
		}
	}
}

func (s *Simulator) cycle(emit func(RawTick)) {
	for _, symbol := range s.watchlist {
		emit(s.Tick(symbol))
	}
}

// Tick produces the next random-walk observation for a symbol.
// Walk parameters: mean +0.1%, stddev 1.5%, with a 15% chance of a
// 5-20 point volatility spike in either direction.
func (s *Simulator) Tick(symbol string) RawTick {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.priceCache[symbol]
	if !ok {
		current = basePrices[symbol]
		if current == 0 {
			current = 100.0
		}
	}

	changePct := s.rng.NormFloat64()*1.5 + 0.1
	if s.rng.Float64() < 0.15 {
		spike := 5 + s.rng.Float64()*15
		if s.rng.Intn(2) == 0 {
			spike = -spike
		}
		changePct += spike
	}

	newPrice := current * (1 + changePct/100)
	s.priceCache[symbol] = newPrice

	volume := int64(1000000 * (0.5 + s.rng.Float64()*1.5))

	return RawTick{
		Symbol:        symbol,
		Price:         round2(newPrice),
		PercentChange: round2(changePct),
		Volume:        volume,
		Sector:        sectorFor(symbol),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

func sectorFor(symbol string) string {
	if sector, ok := sectors[symbol]; ok {
		return sector
	}
	return "Other"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
