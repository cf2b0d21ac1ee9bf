package watchlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/domain"
	"github.com/aristath/solana-signal-daas/internal/metrics"
)

func TestSeedAndContains(t *testing.T) {
	w := New(10, time.Hour)
	w.Seed([]domain.Wallet{{Address: "WalletA"}, {Address: "WalletB"}})

	require.True(t, w.Contains("WalletA"))
	require.True(t, w.Contains("WalletB"))
	require.Equal(t, 2, w.Len())
}

func TestSetMetricsTracksWatchlistSizeGauge(t *testing.T) {
	w := New(10, time.Hour)
	reg := metrics.New()
	w.SetMetrics(reg)

	require.Equal(t, float64(0), reg.Gauge("watchlist_size", ""))

	w.Seed([]domain.Wallet{{Address: "WalletA"}, {Address: "WalletB"}})
	require.Equal(t, float64(2), reg.Gauge("watchlist_size", ""))

	w.TryPromote(domain.Wallet{Address: "WalletC"})
	require.Equal(t, float64(3), reg.Gauge("watchlist_size", ""))

	evicted := w.EvictStale(time.Now().Add(2 * time.Hour))
	require.Equal(t, 3, evicted)
	require.Equal(t, float64(0), reg.Gauge("watchlist_size", ""))
}

func TestTryPromoteEvictsLeastRecentlyTouchedAtCapacity(t *testing.T) {
	w := New(2, time.Hour)
	w.Seed([]domain.Wallet{{Address: "WalletA"}, {Address: "WalletB"}})

	ok := w.TryPromote(domain.Wallet{Address: "WalletC"})
	require.True(t, ok)

	require.False(t, w.Contains("WalletA"))
	require.True(t, w.Contains("WalletB"))
	require.True(t, w.Contains("WalletC"))
}

func TestTouchMovesToBackProtectingFromEviction(t *testing.T) {
	w := New(2, time.Hour)
	w.Seed([]domain.Wallet{{Address: "WalletA"}, {Address: "WalletB"}})

	require.True(t, w.Touch("WalletA"))
	w.TryPromote(domain.Wallet{Address: "WalletC"})

	require.True(t, w.Contains("WalletA"))
	require.False(t, w.Contains("WalletB"))
}

func TestTryPromoteNoOpWhenAlreadyPresent(t *testing.T) {
	w := New(10, time.Hour)
	w.Seed([]domain.Wallet{{Address: "WalletA"}})

	ok := w.TryPromote(domain.Wallet{Address: "WalletA"})
	require.False(t, ok)
	require.Equal(t, 1, w.Len())
}

func TestEvictStaleRemovesUntouchedEntries(t *testing.T) {
	w := New(10, time.Minute)
	w.Seed([]domain.Wallet{{Address: "WalletA"}})

	evicted := w.EvictStale(time.Now().Add(2 * time.Minute))
	require.Equal(t, 1, evicted)
	require.False(t, w.Contains("WalletA"))
}

func TestEvictStaleKeepsFreshEntries(t *testing.T) {
	w := New(10, time.Hour)
	w.Seed([]domain.Wallet{{Address: "WalletA"}})

	evicted := w.EvictStale(time.Now())
	require.Equal(t, 0, evicted)
	require.True(t, w.Contains("WalletA"))
}
