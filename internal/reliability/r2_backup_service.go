package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupFormatVersion = "1.0.0"

// R2BackupService archives the local sqlite snapshot into a tar.gz alongside a
// metadata file and uploads it to R2/S3 (spec's ambient snapshot-backup
// addition, grounded on the teacher's tiered R2 backup service, simplified
// from its multi-database fleet down to the single state database this
// repository persists).
type R2BackupService struct {
	r2      *R2Client
	backup  *BackupService
	dataDir string
	log     zerolog.Logger
}

// BackupMetadata describes one uploaded archive.
type BackupMetadata struct {
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Database  DatabaseMetadata `json:"database"`
}

// DatabaseMetadata describes the single database file inside an archive.
type DatabaseMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes a backup archive stored in R2.
type BackupInfo struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// NewR2BackupService builds an R2BackupService. r2 may be nil; CreateAndUploadBackup
// becomes a no-op in that case (R2 disabled, spec's SnapshotBackup.Enabled=false).
func NewR2BackupService(r2 *R2Client, backup *BackupService, dataDir string, log zerolog.Logger) *R2BackupService {
	return &R2BackupService{r2: r2, backup: backup, dataDir: dataDir, log: log.With().Str("service", "r2_backup").Logger()}
}

// CreateAndUploadBackup snapshots the state database, tars and gzips it with a
// metadata sidecar, and uploads the archive to R2.
func (s *R2BackupService) CreateAndUploadBackup(ctx context.Context) error {
	if s.r2 == nil {
		return nil
	}

	s.log.Info().Msg("starting r2 backup")
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "r2-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbPath, err := s.backup.CreateBackup()
	if err != nil {
		return fmt.Errorf("snapshot state database: %w", err)
	}
	stagedDBPath := filepath.Join(stagingDir, "state.db")
	if err := CopyFile(dbPath, stagedDBPath); err != nil {
		return fmt.Errorf("stage snapshot: %w", err)
	}

	info, err := os.Stat(stagedDBPath)
	if err != nil {
		return fmt.Errorf("stat staged snapshot: %w", err)
	}
	checksum, err := s.calculateChecksum(stagedDBPath)
	if err != nil {
		return fmt.Errorf("checksum staged snapshot: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   backupFormatVersion,
		Database:  DatabaseMetadata{Filename: "state.db", SizeBytes: info.Size(), Checksum: checksum},
	}
	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := s.writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("signal-daas-backup-%s.tar.gz", timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := s.createArchive(archivePath, stagedDBPath, metadataPath); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.r2.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("upload to r2: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_mb", archiveInfo.Size()/1024/1024).
		Msg("r2 backup completed")

	return nil
}

// ListBackups lists archives stored in R2.
func (s *R2BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	if s.r2 == nil {
		return nil, nil
	}

	objects, err := s.r2.List(ctx, "signal-daas-backup-")
	if err != nil {
		return nil, fmt.Errorf("list r2 backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasPrefix(filename, "signal-daas-backup-") || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(filename, "signal-daas-backup-"), ".tar.gz")
		timestamp, err := time.Parse("2006-01-02-150405", timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, BackupInfo{
			Filename: filename, Timestamp: timestamp, SizeBytes: sizeBytes,
			AgeHours: int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// RotateOldBackups deletes R2 archives older than retentionDays, always keeping
// at least 3 regardless of age. retentionDays == 0 keeps everything.
func (s *R2BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	if s.r2 == nil {
		return nil
	}

	s.log.Info().Int("retention_days", retentionDays).Msg("starting r2 backup rotation")

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	const minToKeep = 3
	if len(backups) <= minToKeep {
		s.log.Info().Int("count", len(backups)).Msg("too few backups to rotate")
		return nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, backup := range backups {
		if i < minToKeep || retentionDays == 0 {
			continue
		}
		if backup.Timestamp.Before(cutoff) {
			if err := s.r2.Delete(ctx, backup.Filename); err != nil {
				s.log.Error().Err(err).Str("filename", backup.Filename).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("r2 backup rotation completed")
	return nil
}

func (s *R2BackupService) calculateChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func (s *R2BackupService) writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func (s *R2BackupService) createArchive(archivePath, dbPath, metadataPath string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	if err := s.addFileToArchive(tarWriter, dbPath, "state.db"); err != nil {
		return fmt.Errorf("add state.db: %w", err)
	}
	if err := s.addFileToArchive(tarWriter, metadataPath, "backup-metadata.json"); err != nil {
		return fmt.Errorf("add metadata: %w", err)
	}
	return nil
}

func (s *R2BackupService) addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime()}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
