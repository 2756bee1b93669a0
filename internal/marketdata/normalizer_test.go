package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tick := RawTick{
		Symbol:        "nvda",
		Price:         480.25,
		PercentChange: -18.0,
		Volume:        1500000,
		Sector:        "Technology",
		Timestamp:     "2026-08-28T12:00:00Z",
	}

	fact, err := Normalize(tick)
	require.NoError(t, err)

	assert.Equal(t, "NVDA", fact.Symbol)
	assert.InDelta(t, 480.25, fact.Price, 1e-9)
	// Percent points on the wire become fractions internally.
	assert.InDelta(t, -0.18, fact.PercentChange, 1e-9)
	assert.Equal(t, int64(1500000), fact.Volume)
	assert.Equal(t, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), fact.ObservedAt)
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		tick RawTick
	}{
		{"missing symbol", RawTick{Price: 100}},
		{"blank symbol", RawTick{Symbol: "   ", Price: 100}},
		{"negative price", RawTick{Symbol: "AAPL", Price: -1}},
		{"zero price", RawTick{Symbol: "AAPL", Price: 0}},
		{"bad timestamp", RawTick{Symbol: "AAPL", Price: 100, Timestamp: "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.tick)
			assert.Error(t, err)
		})
	}
}

func TestNormalize_MissingTimestampDefaultsToNow(t *testing.T) {
	before := time.Now().UTC()
	fact, err := Normalize(RawTick{Symbol: "AAPL", Price: 180})
	require.NoError(t, err)

	assert.False(t, fact.ObservedAt.Before(before))
	assert.False(t, fact.ObservedAt.After(time.Now().UTC()))
}

func TestSimulator_Tick(t *testing.T) {
	sim := NewSimulator([]string{"AAPL"}, time.Second, zerolog.Nop())

	tick := sim.Tick("AAPL")

	assert.Equal(t, "AAPL", tick.Symbol)
	assert.Greater(t, tick.Price, 0.0)
	assert.Equal(t, "Technology", tick.Sector)
	assert.NotEmpty(t, tick.Timestamp)

	_, err := time.Parse(time.RFC3339, tick.Timestamp)
	assert.NoError(t, err)

	t.Run("walk continues from cached price", func(t *testing.T) {
		next := sim.Tick("AAPL")
		// Spikes cap at ~21.6% per tick, so successive prices stay related.
		assert.InDelta(t, tick.Price, next.Price, tick.Price*0.25)
	})

	t.Run("unknown symbol starts at default price", func(t *testing.T) {
		unknown := sim.Tick("ZZZZ")
		assert.Greater(t, unknown.Price, 0.0)
		assert.Equal(t, "Other", unknown.Sector)
	})
}

func TestSimulator_RunEmitsWatchlist(t *testing.T) {
	sim := NewSimulator([]string{"AAPL", "TSLA"}, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	done := make(chan struct{})

	go func() {
		defer close(done)
		sim.Run(ctx, func(tick RawTick) {
			got = append(got, tick.Symbol)
			if len(got) == 2 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("simulator did not emit initial cycle")
	}

	assert.Equal(t, []string{"AAPL", "TSLA"}, got)
}

func TestStatsRegistry(t *testing.T) {
	reg := NewStatsRegistry()

	_, ok := reg.Get("AAPL")
	assert.False(t, ok)

	reg.Record("AAPL", 180, 1.0)
	reg.Record("AAPL", 182, 2.0)
	reg.Record("AAPL", 179, -3.0)

	stats, ok := reg.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 3, stats.Observations)
	assert.InDelta(t, 0.0, stats.MeanChange, 1e-9)
	assert.Greater(t, stats.StdDevChange, 0.0)
	assert.InDelta(t, 179, stats.LastPrice, 1e-9)
}

func TestStatsRegistry_WindowEviction(t *testing.T) {
	reg := NewStatsRegistry()
	for i := 0; i < statsWindow+10; i++ {
		reg.Record("TSLA", 250, 1.0)
	}

	stats, ok := reg.Get("TSLA")
	require.True(t, ok)
	assert.Equal(t, statsWindow, stats.Observations)
}

func TestStatsRegistry_All(t *testing.T) {
	reg := NewStatsRegistry()
	reg.Record("AAPL", 180, 0.5)
	reg.Record("TSLA", 250, -1.0)

	all := reg.All()
	assert.Len(t, all, 2)
}
