package pricecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/database"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:?cache=shared", Profile: database.ProfileCache, Name: "price-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(db.Conn())
}

func TestGetMissWhenUnset(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get("SomeMint", time.Minute)
	require.False(t, ok)
}

func TestSetThenGetWithinTTL(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("SomeMint", 0.0042))

	price, ok := c.Get("SomeMint", time.Minute)
	require.True(t, ok)
	require.InDelta(t, 0.0042, price, 1e-9)
}

func TestGetExpiresPastTTL(t *testing.T) {
	c := newTestCache(t)
	_, err := c.db.Exec("INSERT INTO token_prices (mint, price_sol, last_seen) VALUES (?, ?, ?)",
		"OldMint", 1.0, float64(time.Now().Add(-time.Hour).Unix()))
	require.NoError(t, err)

	_, ok := c.Get("OldMint", time.Minute)
	require.False(t, ok)
}

func TestSetOverwritesPrice(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("SomeMint", 1.0))
	require.NoError(t, c.Set("SomeMint", 2.0))

	price, ok := c.Get("SomeMint", time.Minute)
	require.True(t, ok)
	require.InDelta(t, 2.0, price, 1e-9)
}

type stubSource struct {
	price float64
	ok    bool
}

func (s stubSource) PriceSOL(string) (float64, bool) { return s.price, s.ok }

func TestLookupFallsThroughSources(t *testing.T) {
	c := newTestCache(t)
	sources := []PriceSource{stubSource{ok: false}, stubSource{price: 0.5, ok: true}}

	price, ok := Lookup(c, time.Minute, sources, "SomeMint")
	require.True(t, ok)
	require.InDelta(t, 0.5, price, 1e-9)

	cached, ok := c.Get("SomeMint", time.Minute)
	require.True(t, ok)
	require.InDelta(t, 0.5, cached, 1e-9)
}

func TestLookupMissWhenAllSourcesMiss(t *testing.T) {
	c := newTestCache(t)
	sources := []PriceSource{stubSource{ok: false}, stubSource{ok: false}}

	_, ok := Lookup(c, time.Minute, sources, "SomeMint")
	require.False(t, ok)
}
