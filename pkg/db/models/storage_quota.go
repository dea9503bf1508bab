package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StorageQuota holds a client's storage entitlement and current usage.
type StorageQuota struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID          uuid.UUID `gorm:"column:client_id;type:uuid;not null;uniqueIndex"`
	StorageLimitBytes int64     `gorm:"column:storage_limit_bytes;not null"`
	UsedStorageBytes  int64     `gorm:"column:used_storage_bytes;not null;default:0"`
	FileCount         int64     `gorm:"column:file_count;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (q *StorageQuota) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// OverQuota reports whether usage exceeds the current limit.
func (q *StorageQuota) OverQuota() bool {
	return q != nil && q.UsedStorageBytes > q.StorageLimitBytes
}
