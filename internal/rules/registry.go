package rules

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// Registry holds the active rule set and supports atomic reload. Evaluations
// take a snapshot of the set at entry; a concurrent reload never changes a
// running evaluation.
type Registry struct {
	path string
	log  zerolog.Logger

	mu       sync.RWMutex
	rules    []domain.ComplianceRule
	loadedAt time.Time
}

// NewRegistry creates a registry populated from the rules file at path
// (falling back to defaults per Load).
func NewRegistry(path string, log zerolog.Logger) *Registry {
	r := &Registry{
		path: path,
		log:  log.With().Str("component", "rules_registry").Logger(),
	}
	r.Replace(Load(path, log))
	return r
}

// Active returns a copy of the current rule set.
func (r *Registry) Active() []domain.ComplianceRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ComplianceRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Replace atomically swaps in a new rule set.
func (r *Registry) Replace(rules []domain.ComplianceRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = rules
	r.loadedAt = time.Now()
}

// Reload re-reads the rules file and swaps the result in.
func (r *Registry) Reload() int {
	rules := Load(r.path, r.log)
	r.Replace(rules)
	return len(rules)
}

// LoadedAt returns when the current set was installed.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}
