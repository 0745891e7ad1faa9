// Package clientdata provides persistent caching for external feed responses.
// Payloads are stored as msgpack blobs with expiration timestamps for
// cache-first behavior across restarts.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// AllTables lists all tables in cache.db for cleanup operations.
var AllTables = []string{
	"candle_datasets",
	"kv_store",
}

// validTables is a set for O(1) table name validation.
var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// TTL constants for cached data types.
const (
	// TTLCandleDataset keeps a candle dataset around long enough to survive a
	// same-day restart. The staleness policy, not this TTL, decides whether
	// the dataset is actually served; the TTL only bounds disk growth.
	TTLCandleDataset = 48 * time.Hour

	// TTLPortfolio effectively never expires; portfolio state is replaced on
	// every write, not aged out.
	TTLPortfolio = 365 * 24 * time.Hour
)

// Repository provides cache operations over cache.db.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

// keyColumn returns the primary key column name for a table.
func keyColumn(table string) string {
	if table == "candle_datasets" {
		return "symbol"
	}
	return "key"
}

// Store saves a value with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert.
func (r *Repository) Store(table, key string, value interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	blob, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s, data, expires_at) VALUES (?, ?, ?)",
		table, keyColumn(table),
	)

	if _, err := r.db.Exec(query, key, blob, expiresAt); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}

	return nil
}

// GetIfFresh decodes the stored value into dest only if expires_at > now.
// Returns false if the key doesn't exist or the entry is expired.
func (r *Repository) GetIfFresh(table, key string, dest interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf(
		"SELECT data FROM %s WHERE %s = ? AND expires_at > ?",
		table, keyColumn(table),
	)

	var blob []byte
	err := r.db.QueryRow(query, key, time.Now().Unix()).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	if err := msgpack.Unmarshal(blob, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal data from %s: %w", table, err)
	}

	return true, nil
}

// Get decodes the stored value regardless of expiration status.
// Stale data is better than no data when a feed is down.
// Returns false if the key doesn't exist.
func (r *Repository) Get(table, key string, dest interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ?", table, keyColumn(table))

	var blob []byte
	err := r.db.QueryRow(query, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	if err := msgpack.Unmarshal(blob, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal data from %s: %w", table, err)
	}

	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, keyColumn(table))

	if _, err := r.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)

	result, err := r.db.Exec(query, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes all expired entries from all tables.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired from %s: %w", table, err)
		}
		results[table] = deleted
	}

	return results, nil
}
