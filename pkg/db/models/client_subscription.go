package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/pkg/enums"
)

// ClientSubscription mirrors a provider subscription for a client, keyed by the
// provider's subscription id.
type ClientSubscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;primaryKey"`
	ClientID               uuid.UUID                `gorm:"column:client_id;type:uuid;not null;index"`
	PlanID                 string                   `gorm:"column:plan_id;not null"`
	ExternalSubscriptionID string                   `gorm:"column:external_subscription_id;not null;uniqueIndex"`
	ExternalCustomerID     string                   `gorm:"column:external_customer_id;not null"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end"`
	TrialEnd               *time.Time               `gorm:"column:trial_end"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CancelledAt            *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *ClientSubscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
