// Package ratelimiter enforces per-tier daily request quotas, resetting at UTC
// midnight (spec §4.7). Counters are mirrored to sqlite so quotas survive restart.
package ratelimiter

import (
	"database/sql"
	"sync"
	"time"

	"github.com/aristath/solana-signal-daas/internal/domain"
)

// Limits maps a tier to its daily request quota.
type Limits struct {
	Free  int
	Pro   int
	Elite int
}

func (l Limits) forTier(tier domain.Tier) int {
	switch tier {
	case domain.TierPro:
		return l.Pro
	case domain.TierElite:
		return l.Elite
	default:
		return l.Free
	}
}

type counter struct {
	count   int
	resetAt time.Time
}

// Limiter holds one daily counter per API key hash.
type Limiter struct {
	mu       sync.Mutex
	limits   Limits
	counters map[string]counter
	db       *sql.DB
}

// New builds a Limiter backed by db for restart survival.
func New(db *sql.DB, limits Limits) *Limiter {
	return &Limiter{limits: limits, counters: make(map[string]counter), db: db}
}

// todayBoundary returns the UTC midnight that begins the current day.
func todayBoundary(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (l *Limiter) load(keyHash string, boundary time.Time) counter {
	if c, ok := l.counters[keyHash]; ok {
		return c
	}

	var count int
	var resetAt float64
	err := l.db.QueryRow("SELECT count, reset_at FROM rate_limit_usage WHERE key_hash = ?", keyHash).
		Scan(&count, &resetAt)
	if err != nil {
		return counter{count: 0, resetAt: boundary}
	}
	return counter{count: count, resetAt: time.Unix(int64(resetAt), 0).UTC()}
}

func (l *Limiter) persist(keyHash string, c counter) {
	_, _ = l.db.Exec(
		"INSERT INTO rate_limit_usage (key_hash, count, reset_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(key_hash) DO UPDATE SET count = excluded.count, reset_at = excluded.reset_at",
		keyHash, c.count, float64(c.resetAt.Unix()),
	)
}

// CheckLimit rolls keyHash's counter if its last reset predates today's UTC
// midnight boundary, then admits iff count < limit, incrementing on admission.
// Returns (allowed, remaining, limit).
func (l *Limiter) CheckLimit(keyHash string, tier domain.Tier) (allowed bool, remaining int, limit int) {
	limit = l.limits.forTier(tier)
	boundary := todayBoundary(time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.load(keyHash, boundary)
	if c.resetAt.Before(boundary) {
		c.count = 0
		c.resetAt = boundary
	}

	remaining = limit - c.count
	if remaining < 0 {
		remaining = 0
	}
	allowed = c.count < limit

	if allowed {
		c.count++
	}

	l.counters[keyHash] = c
	l.persist(keyHash, c)

	if allowed {
		remaining = limit - c.count
		if remaining < 0 {
			remaining = 0
		}
	}
	return allowed, remaining, limit
}

// GetUsage reports the current count against the tier's limit without consuming
// a request.
func (l *Limiter) GetUsage(keyHash string, tier domain.Tier) (count int, limit int) {
	limit = l.limits.forTier(tier)
	boundary := todayBoundary(time.Now())

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.load(keyHash, boundary)
	if c.resetAt.Before(boundary) {
		return 0, limit
	}
	return c.count, limit
}
