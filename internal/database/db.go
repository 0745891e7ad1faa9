// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Profile defines configuration profiles for databases
type Profile string

const (
	// ProfileStandard - balanced configuration, used for history.db
	ProfileStandard Profile = "standard"
	// ProfileCache - maximum speed for ephemeral data, used for cache.db
	ProfileCache Profile = "cache"
)

// DB wraps the database connection with production-grade configuration
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string // Database name for logging
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile Profile
	Name    string // Friendly name for logging (e.g., "history", "cache")
}

// New creates a new database connection with production-grade configuration
func New(cfg Config) (*DB, error) {
	// file: URIs (in-memory databases in tests) skip filepath resolution
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
	}, nil
}

// buildConnectionString creates SQLite connection string with profile-specific PRAGMAs
func buildConnectionString(path string, profile Profile) string {
	// file: URIs may already carry a query string (mode=memory&cache=shared),
	// in which case the PRAGMAs must join it rather than start a second one.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	// WAL mode for all databases
	connStr := path + sep + "_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileCache:
		// Maximum speed - ephemeral data
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=auto_vacuum(FULL)"
		connStr += "&_pragma=temp_store(MEMORY)"

	case ProfileStandard:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)" // 64MB cache (negative = KB)

	return connStr
}

// configureConnectionPool sets up connection pool for long-term operation
func configureConnectionPool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	// Cache database can have fewer connections
	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection.
// Used by repositories to execute queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// historySchema holds the snapshot history tables.
const historySchema = `
CREATE TABLE IF NOT EXISTS universe_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol      TEXT    NOT NULL,
    rank        INTEGER NOT NULL,
    price       REAL    NOT NULL,
    market_cap  REAL    NOT NULL,
    volume_24h  REAL    NOT NULL,
    change_24h  REAL    NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_universe_snapshots_symbol_time
    ON universe_snapshots (symbol, recorded_at);
CREATE INDEX IF NOT EXISTS idx_universe_snapshots_time
    ON universe_snapshots (recorded_at);
`

// cacheSchema holds the client-data cache tables. Blobs are msgpack-encoded.
const cacheSchema = `
CREATE TABLE IF NOT EXISTS candle_datasets (
    symbol     TEXT    NOT NULL PRIMARY KEY,
    data       BLOB    NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_store (
    key        TEXT    NOT NULL PRIMARY KEY,
    data       BLOB    NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// Migrate applies the schema matching the database name.
// Schemas are idempotent (IF NOT EXISTS), so Migrate is safe to call on every start.
func (db *DB) Migrate() error {
	schemas := map[string]string{
		"history": historySchema,
		"cache":   cacheSchema,
	}

	schema, ok := schemas[db.name]
	if !ok {
		// Unknown database name, nothing to migrate
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction for %s: %w", db.name, err)
	}

	if _, err := tx.Exec(schema); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to apply schema for %s: %w", db.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema for %s: %w", db.name, err)
	}

	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}
