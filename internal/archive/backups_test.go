package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tbourn/media-ratings-backend/internal/domain"
)

func TestBackups_CreateListGetDelete(t *testing.T) {
	db := newTestDB(t, &domain.Backup{})
	dir := t.TempDir()

	ratings := filepath.Join(dir, "ratings.json")
	if err := os.WriteFile(ratings, []byte(`[{"id":"r1"}]`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	files := map[string]string{
		"ratings.json": ratings,
		"missing.json": filepath.Join(dir, "missing.json"),
	}

	b, err := CreateBackup(context.Background(), db, "manual", files)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if b.SizeBytes != int64(len(`[{"id":"r1"}]`)) || len(b.Files) != 1 {
		t.Fatalf("unexpected backup: %+v", b)
	}

	list, err := ListBackups(context.Background(), db)
	if err != nil || len(list) != 1 || list[0].ID != b.ID || list[0].Label != "manual" {
		t.Fatalf("ListBackups: %+v err=%v", list, err)
	}

	got, err := GetBackup(context.Background(), db, b.ID)
	if err != nil {
		t.Fatalf("GetBackup: %v", err)
	}
	contents, names, err := Contents(got)
	if err != nil {
		t.Fatalf("Contents: %v", err)
	}
	if len(names) != 1 || names[0] != "ratings.json" || string(contents["ratings.json"]) != `[{"id":"r1"}]` {
		t.Fatalf("unexpected contents: %v %v", names, contents)
	}

	if err := DeleteBackup(context.Background(), db, b.ID); err != nil {
		t.Fatalf("DeleteBackup: %v", err)
	}
	if err := DeleteBackup(context.Background(), db, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := GetBackup(context.Background(), db, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContents_RejectsNonString(t *testing.T) {
	b := &domain.Backup{ID: "b", Files: map[string]any{"x.json": 42}}
	if _, _, err := Contents(b); err == nil {
		t.Fatalf("expected error for non-string payload")
	}
}
