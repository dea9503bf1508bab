package subscriptions

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/pkg/db"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

// Repository persists client subscriptions keyed by the provider subscription id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByExternalID(ctx context.Context, externalID string) (*models.ClientSubscription, error)
	Create(ctx context.Context, sub *models.ClientSubscription) error
	Save(ctx context.Context, sub *models.ClientSubscription) error
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

// FindByExternalID returns (nil, nil) when no subscription matches.
func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.ClientSubscription, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, nil
	}
	var sub models.ClientSubscription
	if err := r.db.WithContext(ctx).
		Where("external_subscription_id = ?", externalID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	return &sub, nil
}

func (r *repository) Create(ctx context.Context, sub *models.ClientSubscription) error {
	if sub == nil || strings.TrimSpace(sub.ExternalSubscriptionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external subscription id is required")
	}
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "subscription already recorded")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
	}
	return nil
}

// Save overwrites every column of an existing row.
func (r *repository) Save(ctx context.Context, sub *models.ClientSubscription) error {
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save subscription")
	}
	return nil
}
