// Package services – BackupService
//
// BackupService copies every collection file into the SQLite archive and
// restores a chosen copy back into the live repository.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/media-ratings-backend/internal/archive"
	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// BackupStore is the repository contract BackupService needs.
type BackupStore interface {
	IsAdmin(userID string) bool
	Flush(ctx context.Context) error
	DataFiles() map[string]string
	RestoreFiles(ctx context.Context, contents map[string][]byte) error
}

// BackupService archives and restores the collection files.
type BackupService struct {
	Store BackupStore
	DB    *gorm.DB
}

// NewBackupService constructs a BackupService over the archive database.
func NewBackupService(s BackupStore, db *gorm.DB) *BackupService {
	return &BackupService{Store: s, DB: db}
}

// Create flushes pending writes and archives every collection file. An
// empty actorID is the operator CLI and skips the admin check.
func (s *BackupService) Create(ctx context.Context, actorID, label string) (*domain.Backup, error) {
	ctx, span := otel.Tracer("services/BackupService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("actor.id", actorID)))
	defer span.End()

	if err := s.allowed(actorID); err != nil {
		return nil, err
	}
	if err := s.Store.Flush(ctx); err != nil {
		return nil, err
	}
	b, err := archive.CreateBackup(ctx, s.DB, label, s.Store.DataFiles())
	if err != nil {
		return nil, err
	}
	log.Info().Str("component", "backup").Str("backup_id", b.ID).Int64("bytes", b.SizeBytes).Msg("backup created")
	return b, nil
}

// List returns backups newest first, without payloads.
func (s *BackupService) List(ctx context.Context, actorID string) ([]domain.Backup, error) {
	if err := s.allowed(actorID); err != nil {
		return nil, err
	}
	return archive.ListBackups(ctx, s.DB)
}

// Get returns one backup with its payload.
func (s *BackupService) Get(ctx context.Context, actorID, id string) (*domain.Backup, error) {
	if err := s.allowed(actorID); err != nil {
		return nil, err
	}
	b, err := archive.GetBackup(ctx, s.DB, id)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, ErrNotFound
	}
	return b, err
}

// Delete removes one backup.
func (s *BackupService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.allowed(actorID); err != nil {
		return err
	}
	err := archive.DeleteBackup(ctx, s.DB, id)
	if errors.Is(err, archive.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Restore writes a backup's files over the live collections and reloads
// the repository. It returns the restored file names.
func (s *BackupService) Restore(ctx context.Context, actorID, id string) ([]string, error) {
	ctx, span := otel.Tracer("services/BackupService").Start(ctx, "Restore",
		trace.WithAttributes(attribute.String("actor.id", actorID), attribute.String("backup.id", id)))
	defer span.End()

	b, err := s.Get(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	contents, names, err := archive.Contents(b)
	if err != nil {
		return nil, err
	}
	if err := s.Store.RestoreFiles(ctx, contents); err != nil {
		return nil, err
	}
	log.Warn().Str("component", "backup").Str("backup_id", id).Strs("files", names).Msg("backup restored")
	return names, nil
}

func (s *BackupService) allowed(actorID string) error {
	if actorID != "" && !s.Store.IsAdmin(actorID) {
		return ErrForbidden
	}
	return nil
}
