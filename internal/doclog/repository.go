// Package doclog records every ingested compliance document for audit.
package doclog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS processing_log (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id         TEXT NOT NULL,
	filename            TEXT NOT NULL,
	doc_type            TEXT NOT NULL,
	risk_rating         TEXT NOT NULL DEFAULT '',
	symbols             TEXT NOT NULL,
	violations_admitted INTEGER NOT NULL DEFAULT 0,
	processed_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processing_log_document ON processing_log(document_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_processed ON processing_log(processed_at);
`

// Entry is one row of the processing log.
type Entry struct {
	ID                 int64     `json:"id"`
	DocumentID         string    `json:"document_id"`
	Filename           string    `json:"filename"`
	DocType            string    `json:"doc_type"`
	RiskRating         string    `json:"risk_rating,omitempty"`
	Symbols            []string  `json:"symbols"`
	ViolationsAdmitted int       `json:"violations_admitted"`
	ProcessedAt        time.Time `json:"processed_at"`
}

// Repository appends to and reads the processing log in the ledger database.
type Repository struct {
	db *database.DB
}

// NewRepository creates the repository and applies its schema.
func NewRepository(db *database.DB) (*Repository, error) {
	if err := db.ExecSchema(schema); err != nil {
		return nil, fmt.Errorf("failed to apply processing log schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Append records one processed document and how many violations it admitted.
func (r *Repository) Append(doc domain.DocumentFact, violationsAdmitted int) error {
	symbols, err := json.Marshal(doc.Symbols)
	if err != nil {
		return fmt.Errorf("failed to encode symbols for %s: %w", doc.DocumentID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO processing_log (document_id, filename, doc_type, risk_rating, symbols, violations_admitted, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.DocumentID,
		doc.Filename,
		string(doc.DocType),
		string(doc.RiskRating),
		string(symbols),
		violationsAdmitted,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append processing log entry for %s: %w", doc.DocumentID, err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (r *Repository) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, document_id, filename, doc_type, risk_rating, symbols, violations_admitted, processed_at
		FROM processing_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry       Entry
			symbolsJSON string
			processedAt string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.DocumentID,
			&entry.Filename,
			&entry.DocType,
			&entry.RiskRating,
			&symbolsJSON,
			&entry.ViolationsAdmitted,
			&processedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan processing log row: %w", err)
		}

		if err := json.Unmarshal([]byte(symbolsJSON), &entry.Symbols); err != nil {
			return nil, fmt.Errorf("failed to decode symbols for log entry %d: %w", entry.ID, err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, processedAt); err == nil {
			entry.ProcessedAt = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the total number of processed documents.
func (r *Repository) Count() (int64, error) {
	var count int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM processing_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processing log: %w", err)
	}
	return count, nil
}
