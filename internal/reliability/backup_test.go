package reliability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/solana-signal-daas/internal/database"
)

func newFileBackedDB(t *testing.T) (*database.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: "reliability-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestCreateBackupProducesVerifiedSnapshot(t *testing.T) {
	db, _ := newFileBackedDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, backupDir, zerolog.Nop())

	path, err := svc.CreateBackup()
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestMostRecentBackupReturnsNewest(t *testing.T) {
	db, _ := newFileBackedDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, backupDir, zerolog.Nop())

	require.Empty(t, svc.MostRecentBackup())

	first, err := svc.CreateBackup()
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := svc.CreateBackup()
	require.NoError(t, err)

	require.Equal(t, second, svc.MostRecentBackup())
	require.NotEqual(t, first, second)
}

func TestRotateBackupsKeepsMinimumThree(t *testing.T) {
	db, _ := newFileBackedDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, backupDir, zerolog.Nop())

	for i := 0; i < 4; i++ {
		_, err := svc.CreateBackup()
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, svc.RotateBackups(1))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 3)
}

func TestRotateBackupsDisabledWhenRetentionZero(t *testing.T) {
	db, _ := newFileBackedDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, backupDir, zerolog.Nop())

	_, err := svc.CreateBackup()
	require.NoError(t, err)

	require.NoError(t, svc.RotateBackups(0))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
