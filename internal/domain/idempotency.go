package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Idempotency records the outcome of a create request keyed by
// (user_id, scope, key) so a retried POST returns the original resource
// instead of creating a duplicate. Rows live in the archive database.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Backup is an archived copy of every collection file taken at CreatedAt.
// Files maps the collection file name to its raw JSON content.
type Backup struct {
	ID        string            `json:"id"         gorm:"type:char(36);primaryKey"`
	Label     string            `json:"label"      gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time         `json:"created_at" gorm:"index"`
	SizeBytes int64             `json:"size_bytes"`
	Files     datatypes.JSONMap `json:"-"          gorm:"type:text;not null"`
}

// TableName implements the GORM tabler interface.
func (Backup) TableName() string { return "backups" }
