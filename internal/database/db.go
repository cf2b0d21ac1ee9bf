// Package database provides the sqlite connection wrapper shared by every component
// that persists state (price cache, seen-signatures, API keys, subscriptions).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Profile selects PRAGMA tuning appropriate to how a database is used.
type Profile string

const (
	// ProfileCache favors speed over durability.
	ProfileCache Profile = "cache"
	// ProfileStandard balances durability and speed; the shared state database
	// (price cache, rate counters, keys, scan state) is opened with it.
	ProfileStandard Profile = "standard"
)

// DB wraps a sqlite connection with production-grade pool/PRAGMA configuration.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config configures a new DB.
type Config struct {
	Path    string
	Profile Profile
	Name    string
}

// New opens a sqlite database, applying WAL mode and profile-specific PRAGMAs.
func New(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	connStr := buildConnectionString(cfg.Path, cfg.Profile)

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=auto_vacuum(FULL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"

	return connStr
}

func configureConnectionPool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn returns the underlying *sql.DB for use by repositories.
func (db *DB) Conn() *sql.DB { return db.conn }

// Name returns the friendly database name used in logging.
func (db *DB) Name() string { return db.name }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Schema is the single source of truth for this service's sqlite tables (spec §6
// persisted state layout). All components share one database file.
const Schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key_hash TEXT UNIQUE NOT NULL,
	tier TEXT NOT NULL,
	created_at REAL NOT NULL,
	expires_at REAL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_key_id INTEGER NOT NULL,
	external_customer_id TEXT,
	external_subscription_id TEXT,
	tier TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at REAL NOT NULL,
	updated_at REAL NOT NULL,
	FOREIGN KEY (api_key_id) REFERENCES api_keys(id)
);

CREATE TABLE IF NOT EXISTS token_prices (
	mint TEXT PRIMARY KEY,
	price_sol REAL NOT NULL,
	last_seen REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS seen_signatures (
	signature TEXT PRIMARY KEY,
	timestamp REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS last_signatures (
	wallet TEXT PRIMARY KEY,
	signature TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS last_alerts (
	wallet TEXT PRIMARY KEY,
	timestamp REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limit_usage (
	key_hash TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	reset_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS _database_health (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	checked_at REAL NOT NULL,
	integrity_check_passed INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	wal_size_bytes INTEGER NOT NULL,
	page_count INTEGER NOT NULL,
	freelist_count INTEGER NOT NULL,
	vacuum_performed INTEGER NOT NULL DEFAULT 0
);
`

// Migrate applies Schema within a transaction. Safe to call on every startup.
func (db *DB) Migrate() error {
	return WithTransaction(db.conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(Schema)
		return err
	})
}

// WithTransaction runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck pings the connection and runs a sqlite integrity check.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, result)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint (TRUNCATE by default) to prevent bloat.
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	_, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	if err != nil {
		return fmt.Errorf("WAL checkpoint failed for %s: %w", db.name, err)
	}
	return nil
}

// Stats reports basic database size/page statistics.
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// GetStats reads current database file and page statistics.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}
	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, err
	}

	return stats, nil
}
