// Package portfolio stores and serves portfolio snapshots. Snapshots are
// immutable; uploads append and the latest one becomes current.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	as_of       TEXT NOT NULL,
	total_value REAL NOT NULL,
	positions   INTEGER NOT NULL,
	blob        BLOB NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_as_of ON snapshots(as_of);
`

// Repository persists snapshots as msgpack blobs in SQLite.
type Repository struct {
	db *database.DB
}

// NewRepository creates the repository and applies its schema.
func NewRepository(db *database.DB) (*Repository, error) {
	if err := db.ExecSchema(schema); err != nil {
		return nil, fmt.Errorf("failed to apply snapshots schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Append stores a new snapshot. It never overwrites a previous one.
func (r *Repository) Append(snap *domain.PortfolioSnapshot) error {
	blob, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO snapshots (as_of, total_value, positions, blob, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.AsOf.UTC().Format(time.RFC3339Nano),
		snap.TotalValue,
		len(snap.Positions),
		blob,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recently stored snapshot, or nil when none exists.
func (r *Repository) Latest() (*domain.PortfolioSnapshot, error) {
	var blob []byte
	err := r.db.QueryRow(`SELECT blob FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	var snap domain.PortfolioSnapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Count returns how many snapshots are stored.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// Prune removes snapshots older than the retention cutoff, keeping at least
// the most recent one regardless of age.
func (r *Repository) Prune(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(
		`DELETE FROM snapshots WHERE created_at < ? AND id != (SELECT MAX(id) FROM snapshots)`,
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
