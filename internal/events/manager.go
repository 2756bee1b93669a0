// Package events emits structured pipeline lifecycle events. Events are
// logged and fanned out to in-process subscribers (counters, websocket
// broadcasts).
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	DocumentIngested    EventType = "DOCUMENT_INGESTED"
	MarketTickApplied   EventType = "MARKET_TICK_APPLIED"
	RecordJoined        EventType = "RECORD_JOINED"
	ViolationDetected   EventType = "VIOLATION_DETECTED"
	ViolationSuppressed EventType = "VIOLATION_SUPPRESSED"
	AlertCreated        EventType = "ALERT_CREATED"
	RulesReloaded       EventType = "RULES_RELOADED"
	SnapshotUpdated     EventType = "SNAPSHOT_UPDATED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler receives emitted events. Handlers run synchronously on the
// emitter's goroutine and must be fast.
type Handler func(Event)

// Manager handles event emission, logging and subscriber fan-out.
type Manager struct {
	log zerolog.Logger

	mu       sync.RWMutex
	handlers []Handler
	counts   map[EventType]uint64
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:    log.With().Str("service", "events").Logger(),
		counts: make(map[EventType]uint64),
	}
}

// Subscribe registers a handler for all subsequent events.
func (m *Manager) Subscribe(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	m.mu.Lock()
	m.counts[eventType]++
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	for _, h := range handlers {
		h(event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}

// Counts returns a copy of per-type emission counters for the status endpoint.
func (m *Manager) Counts() map[EventType]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[EventType]uint64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
