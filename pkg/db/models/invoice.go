package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/phoenix-backend/pkg/db/types"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
)

// Invoice is the durable record of a client charge, one-off or recurring.
type Invoice struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ClientID          uuid.UUID           `gorm:"column:client_id;type:uuid;not null;index"`
	InvoiceNumber     string              `gorm:"column:invoice_number;not null;uniqueIndex"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string              `gorm:"column:currency;not null;default:'eur'"`
	Status            enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PlanID            *string             `gorm:"column:plan_id"`
	PlanName          *string             `gorm:"column:plan_name"`
	Description       *string             `gorm:"column:description"`
	CheckoutSessionID *string             `gorm:"column:checkout_session_id;index"`
	PaymentIntentID   *string             `gorm:"column:payment_intent_id;index"`
	ProviderInvoiceID *string             `gorm:"column:provider_invoice_id;index"`
	ProjectID         *string             `gorm:"column:project_id"`
	Metadata          dbtypes.StringMap   `gorm:"column:metadata;type:jsonb;not null;default:'{}'"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Metadata == nil {
		i.Metadata = dbtypes.StringMap{}
	}
	return nil
}

// PlanIDValue returns the plan id or an empty string.
func (i *Invoice) PlanIDValue() string {
	if i == nil || i.PlanID == nil {
		return ""
	}
	return *i.PlanID
}

// PlanNameValue returns the plan name or an empty string.
func (i *Invoice) PlanNameValue() string {
	if i == nil || i.PlanName == nil {
		return ""
	}
	return *i.PlanName
}
