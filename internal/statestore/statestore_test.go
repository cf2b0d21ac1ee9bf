package statestore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/database"
)

func newTestStore(t *testing.T, ttl time.Duration, maxSeen int) (*Store, *database.DB) {
	t.Helper()
	db, err := database.New(database.Config{Path: "file::memory:?cache=shared", Profile: database.ProfileStandard, Name: "statestore-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(db.Conn(), ttl, maxSeen, zerolog.Nop()), db
}

func TestMarkSeenAndHasSeen(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	require.False(t, s.HasSeen("sig1"))
	s.MarkSeen("sig1")
	require.True(t, s.HasSeen("sig1"))
}

func TestMarkSeenEvictsOldestPastCap(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 2)
	s.MarkSeen("sig1")
	s.MarkSeen("sig2")
	s.MarkSeen("sig3")

	require.False(t, s.HasSeen("sig1"))
	require.True(t, s.HasSeen("sig2"))
	require.True(t, s.HasSeen("sig3"))
	require.Equal(t, 2, s.SeenCount())
}

func TestLastSignatureRoundtrip(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 100)
	_, ok := s.LastSignature("WalletA")
	require.False(t, ok)

	s.SetLastSignature("WalletA", "sig1")
	sig, ok := s.LastSignature("WalletA")
	require.True(t, ok)
	require.Equal(t, "sig1", sig)
}

func TestGCRemovesExpiredEntries(t *testing.T) {
	s, _ := newTestStore(t, time.Minute, 100)
	s.MarkSeen("sig1")
	s.SetLastAlertAt("WalletA", time.Now().Add(-time.Hour))

	s.GC(time.Now().Add(2 * time.Minute))

	require.False(t, s.HasSeen("sig1"))
	_, ok := s.LastAlertAt("WalletA")
	require.False(t, ok)
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	s, db := newTestStore(t, time.Hour, 100)
	s.MarkSeen("sig1")
	s.SetLastSignature("WalletA", "sig1")
	s.SetLastAlertAt("WalletA", time.Now())

	require.NoError(t, s.Save())

	reloaded := New(db.Conn(), time.Hour, 100, zerolog.Nop())
	require.NoError(t, reloaded.Load())

	require.True(t, reloaded.HasSeen("sig1"))
	sig, ok := reloaded.LastSignature("WalletA")
	require.True(t, ok)
	require.Equal(t, "sig1", sig)
	_, ok = reloaded.LastAlertAt("WalletA")
	require.True(t, ok)
}
