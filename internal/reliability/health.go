// Package reliability implements the maintenance, backup, and disaster-recovery
// sidecar around the single sqlite state file: integrity checks with auto-recovery,
// tiered local backups, and an optional off-site snapshot upload to S3/R2-compatible
// storage (spec's ambient snapshot-backup addition).
package reliability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/database"
)

// HealthService monitors the state database and drives auto-recovery when
// integrity checks fail.
type HealthService struct {
	db   *database.DB
	path string
	log  zerolog.Logger
}

// NewHealthService builds a HealthService over db, whose underlying file lives at path.
func NewHealthService(db *database.DB, path string, log zerolog.Logger) *HealthService {
	return &HealthService{db: db, path: path, log: log.With().Str("service", "health").Logger()}
}

// CheckAndRecover runs an integrity check and, on failure, attempts a WAL
// checkpoint followed by a restore from the most recent local backup. It
// returns an error only when every recovery path has been exhausted.
func (s *HealthService) CheckAndRecover(ctx context.Context, backups *BackupService) error {
	s.log.Debug().Msg("starting health check")

	if err := s.db.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("integrity check failed")

		if err := s.db.WALCheckpoint("RESTART"); err != nil {
			s.log.Error().Err(err).Msg("WAL checkpoint recovery failed")
			return s.restoreFromBackup(ctx, backups)
		}
		if err := s.db.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Msg("integrity check still failing after WAL checkpoint")
			return s.restoreFromBackup(ctx, backups)
		}
		s.log.Info().Msg("database recovered via WAL checkpoint")
	}

	if s.checkAnomalousGrowth() {
		s.log.Warn().Msg("anomalous database growth detected")
	}

	if err := s.recordHealthMetrics(true, false); err != nil {
		s.log.Error().Err(err).Msg("failed to record health metrics")
	}

	s.log.Debug().Msg("health check complete")
	return nil
}

// restoreFromBackup restores the state file from the most recent local backup,
// preserving the corrupted file alongside it for post-mortem inspection.
func (s *HealthService) restoreFromBackup(ctx context.Context, backups *BackupService) error {
	s.log.Warn().Msg("attempting restore from backup")

	backup := backups.MostRecentBackup()
	if backup == "" {
		return fmt.Errorf("CRITICAL: no backup available to restore from")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database before restore: %w", err)
	}

	corruptedPath := s.path + ".corrupted." + time.Now().Format("20060102_150405")
	if err := os.Rename(s.path, corruptedPath); err != nil {
		s.log.Error().Err(err).Msg("failed to preserve corrupted file")
	} else {
		s.log.Info().Str("path", corruptedPath).Msg("corrupted file preserved")
	}

	if err := CopyFile(backup, s.path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	restored, err := database.New(database.Config{Path: s.path, Profile: database.ProfileStandard, Name: s.db.Name()})
	if err != nil {
		return fmt.Errorf("reopen restored database: %w", err)
	}
	if err := restored.HealthCheck(ctx); err != nil {
		return fmt.Errorf("restored backup is also corrupt: %w", err)
	}

	s.db = restored
	s.log.Info().Str("backup", backup).Msg("restored from backup")
	return nil
}

// checkAnomalousGrowth flags a jump of more than 50% in file size since the
// previous recorded health check.
func (s *HealthService) checkAnomalousGrowth() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	currentSize := info.Size()

	var previousSize int64
	err = s.db.Conn().QueryRow(`
		SELECT size_bytes FROM _database_health ORDER BY checked_at DESC LIMIT 1
	`).Scan(&previousSize)
	if err != nil || previousSize == 0 {
		return false
	}

	growth := float64(currentSize-previousSize) / float64(previousSize)
	return growth > 0.5
}

func (s *HealthService) recordHealthMetrics(passed, vacuumed bool) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}

	var walSize int64
	if walInfo, err := os.Stat(s.path + "-wal"); err == nil {
		walSize = walInfo.Size()
	}

	var pageCount, freelistCount int
	_ = s.db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = s.db.Conn().QueryRow("PRAGMA freelist_count").Scan(&freelistCount)

	_, err = s.db.Conn().Exec(`
		INSERT INTO _database_health (
			checked_at, integrity_check_passed, size_bytes, wal_size_bytes, page_count, freelist_count, vacuum_performed
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, float64(time.Now().Unix()), boolToInt(passed), info.Size(), walSize, pageCount, freelistCount, boolToInt(vacuumed))
	return err
}

// Vacuum runs SQLite's VACUUM and records the outcome for GetMetrics' LastVacuum.
func (s *HealthService) Vacuum() error {
	var pageCount, pageSize int
	_ = s.db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = s.db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	if _, err := s.db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}

	_ = s.db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024

	s.log.Info().
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Msg("vacuum completed")

	return s.recordHealthMetrics(true, true)
}

// Metrics reports current database size and last-check/vacuum timestamps; the
// weekly maintenance job logs them.
type Metrics struct {
	SizeMB               float64
	WALSizeMB            float64
	LastVacuum           time.Time
	LastIntegrityCheck   time.Time
	IntegrityCheckPassed bool
}

// GetMetrics reads the latest recorded health-check row plus live file sizes.
func (s *HealthService) GetMetrics() (*Metrics, error) {
	m := &Metrics{}

	if info, err := os.Stat(s.path); err == nil {
		m.SizeMB = float64(info.Size()) / 1024 / 1024
	}
	if info, err := os.Stat(s.path + "-wal"); err == nil {
		m.WALSizeMB = float64(info.Size()) / 1024 / 1024
	}

	var lastVacuum float64
	if err := s.db.Conn().QueryRow(`
		SELECT checked_at FROM _database_health WHERE vacuum_performed = 1 ORDER BY checked_at DESC LIMIT 1
	`).Scan(&lastVacuum); err == nil {
		m.LastVacuum = time.Unix(int64(lastVacuum), 0)
	}

	var lastCheck float64
	var lastPassed int
	if err := s.db.Conn().QueryRow(`
		SELECT checked_at, integrity_check_passed FROM _database_health ORDER BY checked_at DESC LIMIT 1
	`).Scan(&lastCheck, &lastPassed); err == nil {
		m.LastIntegrityCheck = time.Unix(int64(lastCheck), 0)
		m.IntegrityCheckPassed = lastPassed == 1
	}

	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CopyFile copies a file from src to dst, used both for preserving a corrupted
// state file and for restoring from backup.
func CopyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o644)
}
