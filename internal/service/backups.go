package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/backup"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/metrics"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

// RestoreConfirmation must be sent verbatim to restore a backup
const RestoreConfirmation = "RESTORE"

func (s *Service) backupManager() (*backup.Manager, error) {
	if s.backups == nil {
		return nil, apperr.Unavailable("Backup-urile nu sunt configurate", nil)
	}
	return s.backups, nil
}

func backupErr(err error) error {
	switch {
	case errors.Is(err, backup.ErrNotFound):
		return apperr.NotFound("Backup-ul")
	case errors.Is(err, backup.ErrChecksumMismatch):
		return apperr.Conflict("Arhiva backup-ului este coruptă (checksum invalid)")
	default:
		return storeErr(err, "Backup-ul")
	}
}

// ListBackups returns the archives on disk, newest first
func (s *Service) ListBackups(ctx context.Context) ([]*models.Backup, error) {
	m, err := s.backupManager()
	if err != nil {
		return nil, err
	}
	list, err := m.List()
	if err != nil {
		return nil, backupErr(err)
	}
	if list == nil {
		list = []*models.Backup{}
	}
	return list, nil
}

// CreateBackup snapshots the whole store into a new archive
func (s *Service) CreateBackup(ctx context.Context, actor Actor) (*models.Backup, error) {
	m, err := s.backupManager()
	if err != nil {
		return nil, err
	}
	snap, err := s.store.ExportSnapshot(ctx)
	if err != nil {
		s.metrics.BackupOperationsTotal.WithLabelValues("create", "error").Inc()
		return nil, storeErr(err, "Backup-ul")
	}
	b, err := m.Create(snap, actor.Email)
	s.metrics.BackupOperationsTotal.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		return nil, backupErr(err)
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.BackupCreated,
		LogType:  models.LogTypeSystem,
		Category: "backup",
		Message:  fmt.Sprintf("Backup creat: %s (%.2f MB, %d înregistrări)", b.Filename, b.SizeMB, b.FileCount),
		Data:     models.Variables{"backup_id": b.ID.String(), "checksum": b.Checksum},
	})
	return b, nil
}

// OpenBackup returns the raw archive for download. The caller closes it.
func (s *Service) OpenBackup(ctx context.Context, id uuid.UUID) (io.ReadCloser, *models.Backup, error) {
	m, err := s.backupManager()
	if err != nil {
		return nil, nil, err
	}
	rc, b, err := m.Open(id)
	if err != nil {
		return nil, nil, backupErr(err)
	}
	return rc, b, nil
}

// DeleteBackup removes an archive
func (s *Service) DeleteBackup(ctx context.Context, actor Actor, id uuid.UUID) error {
	m, err := s.backupManager()
	if err != nil {
		return err
	}
	b, err := m.Get(id)
	if err != nil {
		return backupErr(err)
	}
	err = m.Delete(id)
	s.metrics.BackupOperationsTotal.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		return backupErr(err)
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.BackupDeleted,
		LogType:  models.LogTypeSystem,
		Level:    models.LogLevelWarning,
		Category: "backup",
		Message:  "Backup șters: " + b.Filename,
		Data:     models.Variables{"backup_id": id.String()},
	})
	return nil
}

// RestoreBackupRequest confirms a destructive restore
type RestoreBackupRequest struct {
	Confirm string `json:"confirm"`
}

// RestoreBackup replaces the whole store with an archive. The log is kept;
// a critical entry is written before and after.
func (s *Service) RestoreBackup(ctx context.Context, actor Actor, id uuid.UUID, req RestoreBackupRequest) (*models.Backup, error) {
	if req.Confirm != RestoreConfirmation {
		return nil, apperr.Validation("Restaurarea necesită confirmarea %q", RestoreConfirmation)
	}
	m, err := s.backupManager()
	if err != nil {
		return nil, err
	}
	b, err := m.Get(id)
	if err != nil {
		return nil, backupErr(err)
	}
	snap, err := m.Load(id)
	if err != nil {
		s.metrics.BackupOperationsTotal.WithLabelValues("restore", "error").Inc()
		return nil, backupErr(err)
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.BackupRestored,
		LogType:  models.LogTypeSystem,
		Level:    models.LogLevelCritical,
		Category: "backup",
		Message:  "Începe restaurarea backup-ului " + b.Filename,
		Data:     models.Variables{"backup_id": id.String(), "phase": "start"},
	})

	err = s.store.ImportSnapshot(ctx, snap)
	s.metrics.BackupOperationsTotal.WithLabelValues("restore", metrics.Result(err)).Inc()
	if err != nil {
		log.Error().Err(err).Str("backup_id", id.String()).Msg("Restore failed")
		s.publish(ctx, actor, events.Event{
			Type:     events.BackupRestored,
			LogType:  models.LogTypeSystem,
			Level:    models.LogLevelCritical,
			Category: "backup",
			Message:  "Restaurarea backup-ului " + b.Filename + " a eșuat",
			Data:     models.Variables{"backup_id": id.String(), "phase": "failed"},
		})
		return nil, storeErr(err, "Backup-ul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.BackupRestored,
		LogType:  models.LogTypeSystem,
		Level:    models.LogLevelCritical,
		Category: "backup",
		Message:  fmt.Sprintf("Backup restaurat: %s (%d înregistrări)", b.Filename, snap.Records()),
		Data:     models.Variables{"backup_id": id.String(), "phase": "done"},
	})
	return b, nil
}
