// Package apiauth issues and validates API keys: random 256-bit tokens encoded
// URL-safe and prefixed "daas_", with only the SHA-256 hash persisted (spec §4.7).
package apiauth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

// Auth wraps the api_keys table.
type Auth struct {
	db *sql.DB
}

// New wraps db, which must already have the api_keys table migrated.
func New(db *sql.DB) *Auth {
	return &Auth{db: db}
}

// HashKey returns the hex-encoded SHA-256 hash of a raw API key.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func generateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return "daas_" + base64.RawURLEncoding.EncodeToString(raw), nil
}

// CreateKey generates a new random key, persists its hash at the given tier, and
// returns the raw key (shown to the caller exactly once) alongside its hash.
func (a *Auth) CreateKey(tier domain.Tier, expiresAt *time.Time) (rawKey, keyHash string, err error) {
	rawKey, err = generateKey()
	if err != nil {
		return "", "", err
	}
	keyHash = HashKey(rawKey)

	var expires interface{}
	if expiresAt != nil {
		expires = float64(expiresAt.Unix())
	}

	_, err = a.db.Exec(
		"INSERT INTO api_keys (key_hash, tier, created_at, expires_at, is_active) VALUES (?, ?, ?, ?, 1)",
		keyHash, string(tier), float64(time.Now().Unix()), expires,
	)
	if err != nil {
		return "", "", fmt.Errorf("insert api key: %w", err)
	}
	return rawKey, keyHash, nil
}

// Validate returns (tier, true) iff rawKey's hash exists, is active, and is not
// expired. Any other outcome reports (_, false) (spec §4.7).
func (a *Auth) Validate(rawKey string) (domain.Tier, bool) {
	keyHash := HashKey(rawKey)

	var tier string
	var isActive bool
	var expiresAt sql.NullFloat64
	err := a.db.QueryRow(
		"SELECT tier, is_active, expires_at FROM api_keys WHERE key_hash = ?", keyHash,
	).Scan(&tier, &isActive, &expiresAt)
	if err != nil {
		return "", false
	}

	if !isActive {
		return "", false
	}
	if expiresAt.Valid && time.Now().After(time.Unix(int64(expiresAt.Float64), 0)) {
		return "", false
	}

	return domain.Tier(tier), true
}

// Deactivate flips is_active to 0 for rawKey's hash. Returns false if no row matched.
func (a *Auth) Deactivate(rawKey string) (bool, error) {
	res, err := a.db.Exec("UPDATE api_keys SET is_active = 0 WHERE key_hash = ?", HashKey(rawKey))
	if err != nil {
		return false, fmt.Errorf("deactivate key: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateTier changes the tier associated with rawKey's hash.
func (a *Auth) UpdateTier(rawKey string, tier domain.Tier) (bool, error) {
	res, err := a.db.Exec("UPDATE api_keys SET tier = ? WHERE key_hash = ?", string(tier), HashKey(rawKey))
	if err != nil {
		return false, fmt.Errorf("update tier: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
