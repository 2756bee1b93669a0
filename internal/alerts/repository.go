// Package alerts persists finalized compliance alerts and manages their
// operator-facing lifecycle.
package alerts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	alert_id       TEXT PRIMARY KEY,
	violation_key  TEXT NOT NULL,
	rule_id        TEXT NOT NULL,
	severity       TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	escalated      INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'OPEN',
	payload        TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

// Repository stores alerts in the ledger database. The full alert is kept as
// a JSON payload; hot columns are broken out for filtering.
type Repository struct {
	db *database.DB
}

// NewRepository creates the repository and applies its schema.
func NewRepository(db *database.DB) (*Repository, error) {
	if err := db.ExecSchema(schema); err != nil {
		return nil, fmt.Errorf("failed to apply alerts schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Save upserts an alert by alert ID. Retried finalizations write the same
// row, so persistence stays idempotent.
func (r *Repository) Save(alert *domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", alert.AlertID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = r.db.Exec(`
		INSERT INTO alerts (alert_id, violation_key, rule_id, severity, symbol, escalated, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			escalated = excluded.escalated,
			payload   = excluded.payload,
			updated_at = excluded.updated_at`,
		alert.AlertID,
		alert.ViolationKey,
		alert.RuleID,
		string(alert.Severity),
		alert.Symbol,
		boolToInt(alert.Escalated),
		string(alert.Status),
		string(payload),
		alert.CreatedAt.UTC().Format(time.RFC3339Nano),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// Get returns one alert by ID, or nil when not found.
func (r *Repository) Get(alertID string) (*domain.Alert, error) {
	var payload string
	var status string
	err := r.db.QueryRow(`SELECT payload, status FROM alerts WHERE alert_id = ?`, alertID).Scan(&payload, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %s: %w", alertID, err)
	}
	return decodeAlert(payload, status)
}

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	Status   domain.AlertStatus
	Symbol   string
	Severity domain.Severity
	Limit    int
}

// List returns alerts matching the filter, newest first.
func (r *Repository) List(filter ListFilter) ([]*domain.Alert, error) {
	query := `SELECT payload, status FROM alerts WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, filter.Symbol)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		var payload, status string
		if err := rows.Scan(&payload, &status); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alert, err := decodeAlert(payload, status)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// UpdateStatus transitions an alert's operator status. Returns an error when
// the alert does not exist.
func (r *Repository) UpdateStatus(alertID string, status domain.AlertStatus) error {
	res, err := r.db.Exec(
		`UPDATE alerts SET status = ?, updated_at = ? WHERE alert_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), alertID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert %s status: %w", alertID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert %s not found", alertID)
	}
	return nil
}

// CountByStatus returns alert counts grouped by status.
func (r *Repository) CountByStatus() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// decodeAlert rebuilds the alert from its payload, with the status column as
// the source of truth for lifecycle state.
func decodeAlert(payload, status string) (*domain.Alert, error) {
	var alert domain.Alert
	if err := json.Unmarshal([]byte(payload), &alert); err != nil {
		return nil, fmt.Errorf("failed to decode alert payload: %w", err)
	}
	alert.Status = domain.AlertStatus(status)
	return &alert, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
