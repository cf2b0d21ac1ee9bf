// Package pricecache maps SPL token mints to a last-seen SOL price, backed by the
// shared state database's token_prices table (spec §4.2, §6).
package pricecache

import (
	"database/sql"
	"fmt"
	"time"
)

// WSOLMint is the well-known mint representing SOL wrapped as an SPL token. Its
// balance deltas are never priced via the cache — they are added to the native
// profit sum at 1:1 (spec §4.2, §4.3).
const WSOLMint = "So11111111111111111111111111111111111111112"

// Cache wraps the token_prices table.
type Cache struct {
	db *sql.DB
}

// New wraps db, which must already have the token_prices table migrated.
func New(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get returns the cached SOL price for mint iff it was last seen within ttl.
// Returns (0, false) on miss or expiry.
func (c *Cache) Get(mint string, ttl time.Duration) (float64, bool) {
	var priceSol, lastSeen float64
	err := c.db.QueryRow("SELECT price_sol, last_seen FROM token_prices WHERE mint = ?", mint).
		Scan(&priceSol, &lastSeen)
	if err != nil {
		return 0, false
	}
	seenAt := time.Unix(int64(lastSeen), 0)
	if ttl > 0 && time.Since(seenAt) > ttl {
		return 0, false
	}
	return priceSol, true
}

// Set upserts mint's price with last_seen = now.
func (c *Cache) Set(mint string, priceSol float64) error {
	_, err := c.db.Exec(
		`INSERT INTO token_prices (mint, price_sol, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(mint) DO UPDATE SET price_sol = excluded.price_sol, last_seen = excluded.last_seen`,
		mint, priceSol, float64(time.Now().Unix()),
	)
	if err != nil {
		return fmt.Errorf("set price for %s: %w", mint, err)
	}
	return nil
}
