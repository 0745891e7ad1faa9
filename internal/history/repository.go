// Package history persists ranked universe refresh results so breadth and
// per-symbol trends survive restarts. Rows accumulate on every fan-out pass
// and are trimmed by the daily maintenance job.
package history

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/database"
	"marketpulse/internal/domain"
)

// Point is one persisted universe observation for a symbol.
type Point struct {
	Symbol     domain.Symbol `json:"symbol"`
	Rank       int           `json:"rank"`
	Price      float64       `json:"price"`
	MarketCap  float64       `json:"market_cap"`
	Volume24h  float64       `json:"volume_24h"`
	Change24h  float64       `json:"change_24h"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Repository handles universe snapshot persistence in history.db.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// New creates a history repository.
func New(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// RecordUniverse appends one row per ranked entry, all stamped with the same
// recording time so a pass can be reconstructed as a unit.
func (r *Repository) RecordUniverse(ranked []domain.RankedSnapshot) error {
	if len(ranked) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO universe_snapshots (symbol, rank, price, market_cap, volume_24h, change_24h, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := time.Now().Unix()
	for _, entry := range ranked {
		if _, err := stmt.Exec(
			entry.Symbol.String(),
			entry.Rank,
			entry.Price,
			entry.MarketCap,
			entry.Volume24h,
			entry.Change24h,
			recordedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert snapshot for %s: %w", entry.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit universe snapshots: %w", err)
	}

	r.log.Debug().Int("count", len(ranked)).Msg("Recorded universe pass")
	return nil
}

// SymbolHistory returns a symbol's observations since the given time, oldest
// first.
func (r *Repository) SymbolHistory(symbol domain.Symbol, since time.Time) ([]Point, error) {
	rows, err := r.db.Conn().Query(`
		SELECT symbol, rank, price, market_cap, volume_24h, change_24h, recorded_at
		FROM universe_snapshots
		WHERE symbol = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC
	`, symbol.String(), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol history: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var sym string
		var recordedAt int64
		if err := rows.Scan(&sym, &p.Rank, &p.Price, &p.MarketCap, &p.Volume24h, &p.Change24h, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		p.Symbol = domain.Symbol(sym)
		p.RecordedAt = time.Unix(recordedAt, 0)
		points = append(points, p)
	}
	return points, rows.Err()
}

// Cleanup deletes observations older than the retention window and returns
// the number of rows removed.
func (r *Repository) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()

	result, err := r.db.Conn().Exec(
		"DELETE FROM universe_snapshots WHERE recorded_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired history: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.log.Info().Int64("rows", deleted).Msg("Trimmed universe history")
	}
	return deleted, nil
}

// Count returns the total number of stored observations.
func (r *Repository) Count() (int64, error) {
	var n int64
	err := r.db.Conn().QueryRow("SELECT COUNT(*) FROM universe_snapshots").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history rows: %w", err)
	}
	return n, nil
}
