package reliability

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/solana-signal-daas/internal/errs"
)

// MaintenanceService runs the daily/weekly upkeep cycle over the state database:
// integrity check with auto-recovery (WAL checkpoint, then restore from backup),
// disk-space guard, a fresh local backup plus rotation, and (weekly) a VACUUM (spec's ambient
// snapshot-backup addition, grounded on the teacher's daily/weekly/monthly
// maintenance jobs simplified to the single database this repository persists).
type MaintenanceService struct {
	health        *HealthService
	backup        *BackupService
	r2Backup      *R2BackupService
	retentionDays int
	dataDir       string
	log           zerolog.Logger
}

// NewMaintenanceService builds a MaintenanceService. r2Backup may be nil when
// off-site backup is disabled (spec's SnapshotBackup.Enabled=false).
func NewMaintenanceService(health *HealthService, backup *BackupService, r2Backup *R2BackupService, retentionDays int, dataDir string, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		health: health, backup: backup, r2Backup: r2Backup, retentionDays: retentionDays,
		dataDir: dataDir, log: log.With().Str("component", "maintenance").Logger(),
	}
}

// RunDaily performs the daily maintenance cycle: integrity check and
// auto-recovery (a WAL checkpoint is attempted only when the check fails), disk
// space guard, a fresh local backup (with rotation), and an off-site upload when
// R2 is configured.
func (m *MaintenanceService) RunDaily(ctx context.Context) error {
	m.log.Info().Msg("starting daily maintenance")
	start := time.Now()

	if err := m.health.CheckAndRecover(ctx, m.backup); err != nil {
		m.log.Error().Err(err).Msg("CRITICAL: failed to recover database")
		return err
	}

	if err := m.checkDiskSpace(); err != nil {
		return err
	}

	if _, err := m.backup.CreateBackup(); err != nil {
		m.log.Error().Err(err).Msg("daily backup failed")
	} else if err := m.backup.RotateBackups(m.retentionDays); err != nil {
		m.log.Error().Err(err).Msg("backup rotation failed")
	}

	if m.r2Backup != nil {
		if err := m.r2Backup.CreateAndUploadBackup(ctx); err != nil {
			m.log.Error().Err(err).Msg("r2 backup failed")
		} else if err := m.r2Backup.RotateOldBackups(ctx, m.retentionDays); err != nil {
			m.log.Error().Err(err).Msg("r2 backup rotation failed")
		}
	}

	if metrics, err := m.health.GetMetrics(); err == nil {
		m.log.Info().Float64("size_mb", metrics.SizeMB).Float64("wal_size_mb", metrics.WALSizeMB).Msg("database metrics")
	}

	m.log.Info().Dur("duration_ms", time.Since(start)).Msg("daily maintenance completed")
	return nil
}

// RunWeekly VACUUMs the state database to reclaim space freed by GC'd
// seen-signatures and expired rate-limit counters.
func (m *MaintenanceService) RunWeekly(ctx context.Context) error {
	m.log.Info().Msg("starting weekly maintenance")
	start := time.Now()

	if err := m.health.Vacuum(); err != nil {
		m.log.Error().Err(err).Msg("vacuum failed")
		return err
	}

	m.log.Info().Dur("duration_ms", time.Since(start)).Msg("weekly maintenance completed")
	return nil
}

// checkDiskSpace halts the caller with a CatastrophicInternal error when free
// space drops below 500MB, and logs progressively at 5GB/10GB thresholds.
func (m *MaintenanceService) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(filepath.Dir(m.dataDir), &stat); err != nil {
		return fmt.Errorf("stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	m.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < 0.5 {
		m.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: insufficient disk space")
		return errs.New(errs.CatastrophicInternal, fmt.Sprintf("only %.2f GB free", availableGB), nil)
	}
	if availableGB < 5.0 {
		m.log.Error().Float64("available_gb", availableGB).Msg("low disk space, consider cleanup")
	} else if availableGB < 10.0 {
		m.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}

	return nil
}
