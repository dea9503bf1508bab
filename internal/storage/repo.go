package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

const bytesPerGB int64 = 1 << 30

// GBToBytes converts a storage addon size into bytes.
func GBToBytes(gb int64) int64 {
	return gb * bytesPerGB
}

// Repository maintains per-client storage quotas. Limits never drop below the
// base allotment passed by the caller.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByClientID(ctx context.Context, clientID uuid.UUID) (*models.StorageQuota, error)
	Increase(ctx context.Context, clientID uuid.UUID, addBytes, baseBytes int64) (*models.StorageQuota, error)
	Decrease(ctx context.Context, clientID uuid.UUID, subBytes, baseBytes int64) (*models.StorageQuota, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByClientID(ctx context.Context, clientID uuid.UUID) (*models.StorageQuota, error) {
	var quota models.StorageQuota
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&quota).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load storage quota")
	}
	return &quota, nil
}

// Increase adds addBytes to the client's limit, creating the quota at
// baseBytes+addBytes when the client has none yet.
func (r *repository) Increase(ctx context.Context, clientID uuid.UUID, addBytes, baseBytes int64) (*models.StorageQuota, error) {
	if addBytes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storage increase must be positive")
	}
	existing, err := r.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		quota := &models.StorageQuota{
			ClientID:          clientID,
			StorageLimitBytes: baseBytes + addBytes,
		}
		if err := r.db.WithContext(ctx).Create(quota).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create storage quota")
		}
		return quota, nil
	}

	if err := r.db.WithContext(ctx).
		Model(&models.StorageQuota{}).
		Where("id = ?", existing.ID).
		UpdateColumn("storage_limit_bytes", gorm.Expr("storage_limit_bytes + ?", addBytes)).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increase storage quota")
	}
	return r.FindByClientID(ctx, clientID)
}

// Decrease subtracts subBytes from the limit, floored at baseBytes. A client
// without a quota is left untouched and (nil, nil) is returned.
func (r *repository) Decrease(ctx context.Context, clientID uuid.UUID, subBytes, baseBytes int64) (*models.StorageQuota, error) {
	if subBytes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storage decrease must be positive")
	}
	existing, err := r.FindByClientID(ctx, clientID)
	if err != nil || existing == nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Model(&models.StorageQuota{}).
		Where("id = ?", existing.ID).
		UpdateColumn("storage_limit_bytes", gorm.Expr(
			"CASE WHEN storage_limit_bytes - ? < ? THEN ? ELSE storage_limit_bytes - ? END",
			subBytes, baseBytes, baseBytes, subBytes,
		)).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrease storage quota")
	}
	return r.FindByClientID(ctx, clientID)
}
