package archive

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

// CreateBackup reads every file in files (name -> path) and stores their
// contents in one Backup row. Missing files are skipped.
func CreateBackup(ctx context.Context, db *gorm.DB, label string, files map[string]string) (*domain.Backup, error) {
	payload := datatypes.JSONMap{}
	var size int64
	for name, path := range files {
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		payload[name] = string(b)
		size += int64(len(b))
	}
	rec := &domain.Backup{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
		SizeBytes: size,
		Files:     payload,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// ListBackups returns backups newest first, without their payloads.
func ListBackups(ctx context.Context, db *gorm.DB) ([]domain.Backup, error) {
	var out []domain.Backup
	err := db.WithContext(ctx).
		Omit("files").
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// GetBackup fetches a backup with its payload, or ErrNotFound.
func GetBackup(ctx context.Context, db *gorm.DB, id string) (*domain.Backup, error) {
	var b domain.Backup
	if err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBackup removes a backup. It returns ErrNotFound when nothing matched.
func DeleteBackup(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Backup{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Contents decodes the payload of b into raw file contents keyed by file
// name, in a stable order of names.
func Contents(b *domain.Backup) (map[string][]byte, []string, error) {
	out := make(map[string][]byte, len(b.Files))
	names := make([]string, 0, len(b.Files))
	for name, v := range b.Files {
		s, ok := v.(string)
		if !ok {
			return nil, nil, fmt.Errorf("backup %s: file %s is not a string", b.ID, name)
		}
		out[name] = []byte(s)
		names = append(names, name)
	}
	sort.Strings(names)
	return out, names, nil
}
