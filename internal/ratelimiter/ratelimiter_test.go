package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/database"
	"github.com/aristath/solana-signal-daas/internal/domain"
)

func newTestLimiter(t *testing.T, limits Limits) *Limiter {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:?cache=shared", Profile: database.ProfileStandard, Name: "ratelimiter-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(db.Conn(), limits)
}

func TestCheckLimitAllowsUnderQuota(t *testing.T) {
	l := newTestLimiter(t, Limits{Free: 3, Pro: 10, Elite: 100})

	allowed, remaining, limit := l.CheckLimit("hash1", domain.TierFree)
	require.True(t, allowed)
	require.Equal(t, 2, remaining)
	require.Equal(t, 3, limit)
}

func TestCheckLimitBlocksAtQuota(t *testing.T) {
	l := newTestLimiter(t, Limits{Free: 2, Pro: 10, Elite: 100})

	l.CheckLimit("hash1", domain.TierFree)
	l.CheckLimit("hash1", domain.TierFree)
	allowed, remaining, limit := l.CheckLimit("hash1", domain.TierFree)

	require.False(t, allowed)
	require.Equal(t, 0, remaining)
	require.Equal(t, 2, limit)
}

func TestCheckLimitIsolatesByKeyHash(t *testing.T) {
	l := newTestLimiter(t, Limits{Free: 1, Pro: 10, Elite: 100})

	allowedA, _, _ := l.CheckLimit("hashA", domain.TierFree)
	allowedB, _, _ := l.CheckLimit("hashB", domain.TierFree)

	require.True(t, allowedA)
	require.True(t, allowedB)
}

func TestCheckLimitUsesTierSpecificQuota(t *testing.T) {
	l := newTestLimiter(t, Limits{Free: 1, Pro: 5, Elite: 100})

	_, _, limit := l.CheckLimit("hash1", domain.TierPro)
	require.Equal(t, 5, limit)
}

func TestGetUsageDoesNotConsumeQuota(t *testing.T) {
	l := newTestLimiter(t, Limits{Free: 3, Pro: 10, Elite: 100})

	l.CheckLimit("hash1", domain.TierFree)
	count, limit := l.GetUsage("hash1", domain.TierFree)
	require.Equal(t, 1, count)
	require.Equal(t, 3, limit)

	count, _ = l.GetUsage("hash1", domain.TierFree)
	require.Equal(t, 1, count, "GetUsage must not increment the counter")
}

func TestCheckLimitResetsAtTodayBoundary(t *testing.T) {
	l := newTestLimiter(t, Limits{Free: 1, Pro: 10, Elite: 100})

	allowed, _, _ := l.CheckLimit("hash1", domain.TierFree)
	require.True(t, allowed)

	blocked, _, _ := l.CheckLimit("hash1", domain.TierFree)
	require.False(t, blocked)

	l.mu.Lock()
	c := l.counters["hash1"]
	c.resetAt = todayBoundary(time.Now()).Add(-48 * time.Hour)
	l.counters["hash1"] = c
	l.mu.Unlock()

	allowed, remaining, _ := l.CheckLimit("hash1", domain.TierFree)
	require.True(t, allowed, "a stale reset_at from a prior day must roll the counter")
	require.Equal(t, 0, remaining)
}

func TestTodayBoundaryTruncatesToUTCMidnight(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 42, 9, 0, time.UTC)
	boundary := todayBoundary(now)
	require.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), boundary)
}
