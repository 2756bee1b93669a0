package domain

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ViolationEvent is one detected rule breach. Events with the same
// ViolationKey describe the same underlying issue and are deduplicated
// before a workflow instance is started.
type ViolationEvent struct {
	EventID      string          `json:"event_id"`
	ViolationKey string          `json:"violation_key"`
	RuleID       string          `json:"rule_id"`
	RuleName     string          `json:"rule_name"`
	Category     string          `json:"category"`
	Severity     Severity        `json:"severity"`
	Symbol       string          `json:"symbol"`
	Message      string          `json:"message"`
	Record       *EnrichedRecord `json:"triggering_record,omitempty"`
	DetectedAt   time.Time       `json:"detected_at"`
}

// ViolationKey derives the deterministic deduplication key for a violation.
// Two violations share a key exactly when they represent the same rule
// breaching for the same symbol in the same category.
func ViolationKey(ruleID, symbol, category string) string {
	return fmt.Sprintf("%s:%s:%s", ruleID, symbol, category)
}

// NewViolationEvent creates a violation event. The event ID is a ULID whose
// entropy derives from the violation key and detection time, so re-evaluating
// the same inputs reproduces the identical event. Required for safe replay.
func NewViolationEvent(rule ComplianceRule, symbol, message string, record *EnrichedRecord, detectedAt time.Time) ViolationEvent {
	key := ViolationKey(rule.RuleID, symbol, rule.Category)

	seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", key, detectedAt.UnixNano())))
	id := ulid.MustNew(ulid.Timestamp(detectedAt), bytes.NewReader(seed[:]))

	return ViolationEvent{
		EventID:      id.String(),
		ViolationKey: key,
		RuleID:       rule.RuleID,
		RuleName:     rule.Name,
		Category:     rule.Category,
		Severity:     rule.Severity,
		Symbol:       symbol,
		Message:      message,
		Record:       record,
		DetectedAt:   detectedAt,
	}
}
