package marketdata

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// statsWindow is how many recent percent-change observations each symbol keeps.
const statsWindow = 60

// SymbolStats summarizes recent percent-change behavior for one symbol.
type SymbolStats struct {
	Symbol       string  `json:"symbol"`
	Observations int     `json:"observations"`
	MeanChange   float64 `json:"mean_change"`
	StdDevChange float64 `json:"stddev_change"`
	LastPrice    float64 `json:"last_price"`
}

// StatsRegistry tracks rolling return statistics per symbol. Safe for
// concurrent use.
type StatsRegistry struct {
	mu      sync.RWMutex
	changes map[string][]float64
	prices  map[string]float64
}

// NewStatsRegistry creates an empty statistics registry.
func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{
		changes: make(map[string][]float64),
		prices:  make(map[string]float64),
	}
}

// Record adds one observation for a symbol, evicting the oldest once the
// window is full.
func (r *StatsRegistry) Record(symbol string, price, percentChange float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	window := append(r.changes[symbol], percentChange)
	if len(window) > statsWindow {
		window = window[len(window)-statsWindow:]
	}
	r.changes[symbol] = window
	r.prices[symbol] = price
}

// Get returns current statistics for a symbol. ok is false when no
// observations exist.
func (r *StatsRegistry) Get(symbol string) (SymbolStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	window := r.changes[symbol]
	if len(window) == 0 {
		return SymbolStats{}, false
	}

	s := SymbolStats{
		Symbol:       symbol,
		Observations: len(window),
		MeanChange:   stat.Mean(window, nil),
		LastPrice:    r.prices[symbol],
	}
	if len(window) > 1 {
		s.StdDevChange = stat.StdDev(window, nil)
	}
	return s, true
}

// All returns statistics for every tracked symbol.
func (r *StatsRegistry) All() []SymbolStats {
	r.mu.RLock()
	symbols := make([]string, 0, len(r.changes))
	for s := range r.changes {
		symbols = append(symbols, s)
	}
	r.mu.RUnlock()

	out := make([]SymbolStats, 0, len(symbols))
	for _, s := range symbols {
		if stats, ok := r.Get(s); ok {
			out = append(out, stats)
		}
	}
	return out
}
