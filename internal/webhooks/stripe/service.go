package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/internal/invoices"
	"github.com/angelmondragon/phoenix-backend/internal/notifications"
	"github.com/angelmondragon/phoenix-backend/internal/phoenix"
	"github.com/angelmondragon/phoenix-backend/internal/storage"
	"github.com/angelmondragon/phoenix-backend/internal/subscriptions"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/phoenix-backend/pkg/db/types"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
	"github.com/angelmondragon/phoenix-backend/pkg/metrics"
)

// Event types consumed from the provider.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutExpired        = "checkout.session.expired"
	EventPaymentSucceeded       = "payment_intent.succeeded"
	EventPaymentFailed          = "payment_intent.payment_failed"
	EventInvoicePaid            = "invoice.paid"
	EventInvoicePaymentFailed   = "invoice.payment_failed"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	invoiceTypeRecurring        = "recurring"
	metaProviderInvoiceID       = "providerInvoiceId"
	metaSubscriptionID          = "subscriptionId"
	metaBillingReason           = "billingReason"
	defaultRecurringDescription = "Renouvellement abonnement"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type checkoutHandler interface {
	HandleCheckoutCompleted(ctx context.Context, session phoenix.CheckoutSession) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ServiceParams struct {
	Engine            checkoutHandler
	Invoices          invoices.Repository
	Subscriptions     subscriptions.Repository
	Storage           storage.Repository
	Users             userLookup
	Notifier          *notifications.Notifier
	Metrics           *metrics.WebhookMetrics
	TransactionRunner txRunner
	BaseStorageBytes  int64
	Logger            *logger.Logger
}

// Service routes verified provider events to their ledger handlers.
type Service struct {
	engine        checkoutHandler
	invoices      invoices.Repository
	subscriptions subscriptions.Repository
	storage       storage.Repository
	users         userLookup
	notifier      *notifications.Notifier
	metrics       *metrics.WebhookMetrics
	tx            txRunner
	baseStorage   int64
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout workflow engine required")
	}
	if params.Invoices == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice repo required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storage repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.NewNotifier(nil, nil, nil, logg)
	}
	base := params.BaseStorageBytes
	if base <= 0 {
		base = storage.GBToBytes(5)
	}
	return &Service{
		engine:        params.Engine,
		invoices:      params.Invoices,
		subscriptions: params.Subscriptions,
		storage:       params.Storage,
		users:         params.Users,
		notifier:      notifier,
		metrics:       params.Metrics,
		tx:            params.TransactionRunner,
		baseStorage:   base,
		logg:          logg,
		now:           time.Now,
	}, nil
}

// HandleEvent dispatches by event type. Unknown types are acknowledged without
// processing. A returned error means the delivery should be retried.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}
	ctx = s.logg.WithEvent(ctx, event.ID, event.Type)

	handled, err := s.route(ctx, event)
	switch {
	case err != nil:
		s.metrics.ObserveEvent(event.Type, metrics.OutcomeFailed)
		return err
	case !handled:
		s.metrics.ObserveEvent(event.Type, metrics.OutcomeIgnored)
	default:
		s.metrics.ObserveEvent(event.Type, metrics.OutcomeProcessed)
	}
	return nil
}

func (s *Service) route(ctx context.Context, event *Event) (bool, error) {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventCheckoutExpired:
		return true, s.handleCheckoutExpired(ctx, event)
	case EventPaymentSucceeded:
		s.logg.Info(ctx, "webhook.payment_intent_succeeded")
		return true, nil
	case EventPaymentFailed:
		return true, s.handlePaymentFailed(ctx, event)
	case EventInvoicePaid:
		return true, s.handleInvoicePaid(ctx, event)
	case EventInvoicePaymentFailed:
		return true, s.handleInvoicePaymentFailed(ctx, event)
	case EventSubscriptionUpdated:
		return true, s.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return true, s.handleSubscriptionDeleted(ctx, event)
	default:
		s.logg.Info(ctx, "webhook.event_type_ignored")
		return false, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *Event) (bool, error) {
	payload, err := decode[CheckoutSessionPayload](event.Raw)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	err = s.engine.HandleCheckoutCompleted(ctx, payload.Session())
	if errors.Is(err, phoenix.ErrInvalidIntent) {
		// Redelivering the same metadata cannot succeed.
		s.logg.Error(s.logg.WithField(ctx, "checkout_session_id", payload.ID), "webhook.checkout_metadata_invalid", err)
		return false, nil
	}
	return err == nil, err
}

func (s *Service) handleCheckoutExpired(ctx context.Context, event *Event) error {
	payload, err := decode[CheckoutSessionPayload](event.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	ctx = s.logg.WithField(ctx, "checkout_session_id", payload.ID)

	invoice, err := s.invoices.FindByCheckoutSessionID(ctx, payload.ID)
	if err != nil {
		return err
	}
	if invoice == nil {
		s.logg.Info(ctx, "webhook.expired_session_without_invoice")
		return nil
	}
	ctx = s.logg.WithField(ctx, "invoice_id", invoice.ID.String())
	if invoice.Status == enums.InvoiceStatusPaid || invoice.Status == enums.InvoiceStatusCancelled {
		s.logg.Warn(s.logg.WithField(ctx, "status", string(invoice.Status)), "webhook.expired_session_invoice_unchanged")
		return nil
	}
	if err := s.invoices.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusCancelled); err != nil {
		return err
	}
	s.logg.Info(ctx, "webhook.invoice_cancelled")
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *Event) error {
	payload, err := decode[PaymentIntentPayload](event.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	ctx = s.logg.WithField(ctx, "payment_intent_id", payload.ID)

	invoice, err := s.invoices.FindByPaymentIntentID(ctx, payload.ID)
	if err != nil {
		return err
	}
	if invoice == nil {
		s.logg.Info(ctx, "webhook.failed_payment_without_invoice")
		return nil
	}
	if err := s.invoices.UpdateStatus(ctx, invoice.ID, enums.InvoiceStatusFailed); err != nil {
		return err
	}
	invoice.Status = enums.InvoiceStatusFailed

	data := invoiceData(invoice)
	data["reason"] = payload.FailureMessage()
	s.notifyClient(ctx, invoice.ClientID, notifications.Message{
		Kind:     enums.NotificationPaymentFailed,
		Priority: enums.NotificationPriorityHigh,
		Subject:  invoice.PlanNameValue(),
		Data:     data,
	})
	s.notifier.NotifyStaffBestEffort(ctx, notifications.Message{
		Kind:     enums.NotificationStaffPaymentFailed,
		ClientID: invoice.ClientID.String(),
		Data:     data,
	})
	return nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *Event) error {
	payload, err := decode[InvoicePayload](event.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	subID := payload.SubscriptionID()
	if subID == "" {
		s.logg.Debug(ctx, "webhook.invoice_paid_without_subscription")
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"subscription_id":     subID,
		"provider_invoice_id": payload.ID,
		"billing_reason":      payload.BillingReason,
	})

	sub, err := s.subscriptions.FindByExternalID(ctx, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.logg.Warn(ctx, "webhook.subscription_not_found")
		return nil
	}
	// The first period was invoiced by checkout.session.completed.
	if payload.BillingReason == billingReasonSubscriptionCreate {
		s.logg.Info(ctx, "webhook.initial_invoice_skipped")
		return nil
	}

	paymentIntentID := payload.PaymentIntentID()
	existing, err := s.invoices.FindPaidRecurring(ctx, payload.ID, paymentIntentID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.logg.Info(s.logg.WithField(ctx, "invoice_id", existing.ID.String()), "webhook.recurring_invoice_exists")
		return nil
	}

	now := s.now().UTC()
	start, end := payload.Period()
	invoice := recurringInvoice(sub, payload, enums.InvoiceStatusPaid, payload.AmountPaid)
	invoice.PaymentIntentID = optional(paymentIntentID)
	invoice.PaidAt = &now

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.invoices.WithTx(tx).Create(ctx, invoice); err != nil {
			return err
		}
		subscriptions.RefreshPeriod(sub, start, end)
		return s.subscriptions.WithTx(tx).Save(ctx, sub)
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		s.logg.Info(ctx, "webhook.recurring_invoice_exists")
		return nil
	}
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "invoice_id", invoice.ID.String()), "webhook.recurring_invoice_recorded")
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *Event) error {
	payload, err := decode[InvoicePayload](event.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	subID := payload.SubscriptionID()
	if subID == "" {
		s.logg.Debug(ctx, "webhook.invoice_failed_without_subscription")
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"subscription_id":     subID,
		"provider_invoice_id": payload.ID,
	})

	sub, err := s.subscriptions.FindByExternalID(ctx, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.logg.Warn(ctx, "webhook.subscription_not_found")
		return nil
	}

	// One failed row per dunning attempt.
	invoice := recurringInvoice(sub, payload, enums.InvoiceStatusFailed, payload.AmountDue)
	invoice.PaymentIntentID = optional(payload.PaymentIntentID())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sub.Status = enums.SubscriptionStatusPastDue
		if err := s.subscriptions.WithTx(tx).Save(ctx, sub); err != nil {
			return err
		}
		return s.invoices.WithTx(tx).Create(ctx, invoice)
	})
	if err != nil {
		return err
	}
	s.logg.Warn(s.logg.WithField(ctx, "invoice_id", invoice.ID.String()), "webhook.subscription_past_due")

	data := invoiceData(invoice)
	s.notifyClient(ctx, sub.ClientID, notifications.Message{
		Kind:     enums.NotificationPaymentFailed,
		Priority: enums.NotificationPriorityHigh,
		Data:     data,
	})
	s.notifier.NotifyStaffBestEffort(ctx, notifications.Message{
		Kind:     enums.NotificationStaffPaymentFailed,
		ClientID: sub.ClientID.String(),
		Data:     data,
	})
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	payload, err := decode[SubscriptionPayload](event.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
	}
	ctx = s.logg.WithField(ctx, "subscription_id", payload.ID)

	sub, err := s.subscriptions.FindByExternalID(ctx, payload.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.logg.Warn(ctx, "webhook.subscription_not_found")
		return nil
	}
	if !subscriptions.ApplyProviderState(sub, payload.State()) {
		s.logg.Warn(s.logg.WithField(ctx, "provider_status", payload.Status), "webhook.subscription_status_unmapped")
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return err
	}
	if sub.CancelAtPeriodEnd {
		s.logg.Info(ctx, "webhook.subscription_cancellation_scheduled")
	}
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	payload, err := decode[SubscriptionPayload](event.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
	}
	ctx = s.logg.WithField(ctx, "subscription_id", payload.ID)

	sub, err := s.subscriptions.FindByExternalID(ctx, payload.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.logg.Warn(ctx, "webhook.subscription_not_found")
		return nil
	}
	ctx = s.logg.WithClientID(ctx, sub.ClientID.String())
	// The quota decrease and churn notices already ran for this subscription.
	if sub.Status == enums.SubscriptionStatusCancelled {
		s.logg.Info(ctx, "webhook.subscription_already_cancelled")
		return nil
	}

	addonGB := storageAddonGB(payload.Metadata)
	var quota *models.StorageQuota
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subscriptions.MarkCancelled(sub, s.now())
		if err := s.subscriptions.WithTx(tx).Save(ctx, sub); err != nil {
			return err
		}
		if addonGB <= 0 {
			return nil
		}
		q, err := s.storage.WithTx(tx).Decrease(ctx, sub.ClientID, storage.GBToBytes(addonGB), s.baseStorage)
		quota = q
		return err
	})
	if err != nil {
		return err
	}
	s.logg.Info(ctx, "webhook.subscription_cancelled")

	if quota.OverQuota() {
		s.notifyClient(ctx, sub.ClientID, notifications.Message{
			Kind:     enums.NotificationStorageOverQuota,
			Priority: enums.NotificationPriorityHigh,
			Data: map[string]any{
				"used_bytes":  quota.UsedStorageBytes,
				"limit_bytes": quota.StorageLimitBytes,
			},
		})
	}

	data := map[string]any{
		"subscription_id": sub.ExternalSubscriptionID,
		"plan_id":         sub.PlanID,
	}
	s.notifyClient(ctx, sub.ClientID, notifications.Message{
		Kind: enums.NotificationSubscriptionCancelled,
		Data: data,
	})
	s.notifier.NotifyStaffBestEffort(ctx, notifications.Message{
		Kind:     enums.NotificationStaffSubscriptionCancelled,
		ClientID: sub.ClientID.String(),
		Data:     data,
	})
	return nil
}

func (s *Service) notifyClient(ctx context.Context, clientID uuid.UUID, msg notifications.Message) {
	s.notifier.BestEffort(ctx, string(msg.Kind), func(ctx context.Context) error {
		user, err := s.users.FindByID(ctx, clientID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("client %s not found", clientID)
		}
		msg.ClientID = clientID.String()
		msg.Recipient = user.Email
		s.notifier.Notify(ctx, msg)
		return nil
	})
}

func recurringInvoice(sub *models.ClientSubscription, payload *InvoicePayload, status enums.InvoiceStatus, cents int64) *models.Invoice {
	description := defaultRecurringDescription
	meta := dbtypes.StringMap{
		phoenix.MetaType:      invoiceTypeRecurring,
		metaSubscriptionID:    sub.ExternalSubscriptionID,
		metaProviderInvoiceID: payload.ID,
	}
	if payload.BillingReason != "" {
		meta[metaBillingReason] = payload.BillingReason
	}
	return &models.Invoice{
		ClientID:          sub.ClientID,
		Amount:            decimal.New(cents, -2),
		Currency:          payload.Currency,
		Status:            status,
		PlanID:            optional(sub.PlanID),
		Description:       &description,
		ProviderInvoiceID: optional(payload.ID),
		Metadata:          meta,
	}
}

func storageAddonGB(meta map[string]string) int64 {
	if meta[phoenix.MetaType] != phoenix.TypeStorageAddon {
		return 0
	}
	gb, err := strconv.ParseInt(meta[phoenix.MetaStorageGB], 10, 64)
	if err != nil || gb < 0 {
		return 0
	}
	return gb
}

func invoiceData(invoice *models.Invoice) map[string]any {
	return map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"amount":         invoice.Amount.StringFixed(2),
		"currency":       invoice.Currency,
		"status":         string(invoice.Status),
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
