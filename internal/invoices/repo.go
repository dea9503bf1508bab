package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/pkg/db"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

const (
	openCheckoutSessionConstraint = "ux_invoices_open_checkout_session"
	paidProviderInvoiceConstraint = "ux_invoices_paid_provider_invoice"
)

// Repository handles invoice persistence. Lookups return (nil, nil) when no row matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	Update(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Invoice, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Invoice, error)
	FindPaidRecurring(ctx context.Context, providerInvoiceID, paymentIntentID string) (*models.Invoice, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.InvoiceStatus) error
	MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) error
	SetProjectID(ctx context.Context, id uuid.UUID, projectID string) error
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

// Create assigns an invoice number when missing and inserts the row.
func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice is required")
	}
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if strings.TrimSpace(invoice.InvoiceNumber) == "" {
		invoice.InvoiceNumber = NewInvoiceNumber(r.now(), invoice.ID)
	}
	if invoice.Currency == "" {
		invoice.Currency = "eur"
	}
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		if db.IsUniqueViolation(err, openCheckoutSessionConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an open invoice already exists for this checkout session")
		}
		if db.IsUniqueViolation(err, paidProviderInvoiceConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "provider invoice already recorded as paid")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
	}
	return nil
}

func (r *repository) Update(ctx context.Context, invoice *models.Invoice) error {
	if err := r.db.WithContext(ctx).Save(invoice).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update invoice")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByCheckoutSessionID prefers the open invoice over cancelled ones.
func (r *repository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Invoice, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}
	return r.first(ctx, r.db.WithContext(ctx).
		Where("checkout_session_id = ?", sessionID).
		Order("CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END").
		Order("created_at DESC"))
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Invoice, error) {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, nil
	}
	return r.first(ctx, r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at DESC"))
}

// FindPaidRecurring returns the paid invoice settling a provider invoice,
// matched by provider invoice id or payment intent. Failed attempts sharing
// the payment intent are ignored.
func (r *repository) FindPaidRecurring(ctx context.Context, providerInvoiceID, paymentIntentID string) (*models.Invoice, error) {
	providerInvoiceID = strings.TrimSpace(providerInvoiceID)
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if providerInvoiceID == "" && paymentIntentID == "" {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Where("status = ?", enums.InvoiceStatusPaid)
	switch {
	case providerInvoiceID != "" && paymentIntentID != "":
		query = query.Where("(provider_invoice_id = ? OR payment_intent_id = ?)", providerInvoiceID, paymentIntentID)
	case providerInvoiceID != "":
		query = query.Where("provider_invoice_id = ?", providerInvoiceID)
	default:
		query = query.Where("payment_intent_id = ?", paymentIntentID)
	}
	return r.first(ctx, query.Order("created_at DESC"))
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.InvoiceStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid invoice status %q", status))
	}
	return r.updateColumns(ctx, id, map[string]any{
		"status":     status,
		"updated_at": r.now().UTC(),
	})
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) error {
	updates := map[string]any{
		"status":     enums.InvoiceStatusPaid,
		"paid_at":    paidAt.UTC(),
		"updated_at": r.now().UTC(),
	}
	if paymentIntentID != "" {
		updates["payment_intent_id"] = paymentIntentID
	}
	return r.updateColumns(ctx, id, updates)
}

func (r *repository) SetProjectID(ctx context.Context, id uuid.UUID, projectID string) error {
	return r.updateColumns(ctx, id, map[string]any{
		"project_id": projectID,
		"updated_at": r.now().UTC(),
	})
}

func (r *repository) updateColumns(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		UpdateColumns(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update invoice")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return nil
}

func (r *repository) first(ctx context.Context, query *gorm.DB) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := query.First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	return &invoice, nil
}
