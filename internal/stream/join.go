// Package stream implements the document/market streaming join.
//
// The engine keeps, per symbol, the most recent document fact and market fact
// seen, and emits an enriched record whenever either side arrives and a
// usable counterpart exists. Updates to different symbols proceed
// independently; updates to the same symbol are serialized in arrival order.
package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// Engine is the streaming join over document and market facts.
type Engine struct {
	freshness time.Duration
	now       func() time.Time
	log       zerolog.Logger

	mu     sync.RWMutex
	states map[string]*symbolState
}

// symbolState holds the join state for one symbol. Its mutex serializes all
// updates and emissions for that symbol.
type symbolState struct {
	mu       sync.Mutex
	document *domain.DocumentFact
	market   *domain.MarketFact
}

// New creates a join engine with the given market data freshness window.
func New(freshness time.Duration, log zerolog.Logger) *Engine {
	return &Engine{
		freshness: freshness,
		now:       time.Now,
		log:       log.With().Str("component", "stream_join").Logger(),
		states:    make(map[string]*symbolState),
	}
}

// state returns the state for a symbol, creating it on first use.
func (e *Engine) state(symbol string) *symbolState {
	e.mu.RLock()
	st, ok := e.states[symbol]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.states[symbol]; ok {
		return st
	}
	st = &symbolState{}
	e.states[symbol] = st
	return st
}

// IngestDocument feeds one document fact into the join. A document naming
// multiple symbols fans out to one candidate record per symbol.
func (e *Engine) IngestDocument(doc domain.DocumentFact) []domain.EnrichedRecord {
	var out []domain.EnrichedRecord

	for _, symbol := range doc.Symbols {
		if rec, ok := e.joinDocument(symbol, doc); ok {
			out = append(out, rec)
		}
	}

	e.log.Debug().
		Str("document_id", doc.DocumentID).
		Int("symbols", len(doc.Symbols)).
		Int("emitted", len(out)).
		Msg("Document ingested")

	return out
}

// joinDocument updates one symbol's document side and emits when possible.
func (e *Engine) joinDocument(symbol string, doc domain.DocumentFact) (domain.EnrichedRecord, bool) {
	st := e.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	// At-least-once delivery: re-delivery of the identical fact supersedes
	// silently without triggering another emission.
	if st.document != nil &&
		st.document.DocumentID == doc.DocumentID &&
		st.document.ObservedAt.Equal(doc.ObservedAt) {
		return domain.EnrichedRecord{}, false
	}

	docCopy := doc
	st.document = &docCopy

	// No counterpart: hold the document and emit nothing. The later market
	// arrival triggers the join retroactively.
	if st.market == nil {
		return domain.EnrichedRecord{}, false
	}

	now := e.now()
	market := st.market
	if !market.IsFresh(now, e.freshness) {
		// Held market fact expired: join proceeds on the document alone so
		// price-dependent rules can report insufficient data downstream.
		market = nil
	}

	return domain.EnrichedRecord{
		Symbol:   symbol,
		Document: st.document,
		Market:   market,
		JoinedAt: now,
	}, true
}

// IngestMarket feeds one market fact into the join. Returns at most one
// record: the join of this fact with the held document for its symbol.
func (e *Engine) IngestMarket(fact domain.MarketFact) []domain.EnrichedRecord {
	st := e.state(fact.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	// Last-write-wins by observation timestamp; a strictly older late
	// arrival never replaces newer state. Ties go to the later arrival.
	if st.market != nil && fact.ObservedAt.Before(st.market.ObservedAt) {
		e.log.Debug().
			Str("symbol", fact.Symbol).
			Time("held", st.market.ObservedAt).
			Time("late", fact.ObservedAt).
			Msg("Dropping out-of-order market fact")
		return nil
	}

	factCopy := fact
	st.market = &factCopy

	now := e.now()
	if !fact.IsFresh(now, e.freshness) {
		// Already stale on arrival: keep as state but emit nothing.
		return nil
	}

	if st.document == nil {
		return nil
	}

	return []domain.EnrichedRecord{{
		Symbol:   fact.Symbol,
		Document: st.document,
		Market:   st.market,
		JoinedAt: now,
	}}
}

// Snapshot returns the held facts for a symbol, nil for sides not present.
// Used by the API for diagnostics.
func (e *Engine) Snapshot(symbol string) (*domain.DocumentFact, *domain.MarketFact) {
	st := e.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.document, st.market
}

// SetClock overrides the engine's clock. Test helper.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
