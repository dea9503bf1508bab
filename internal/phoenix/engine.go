package phoenix

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
	"github.com/angelmondragon/phoenix-backend/internal/pendingauth"
	"github.com/angelmondragon/phoenix-backend/internal/provisioner"
	"github.com/angelmondragon/phoenix-backend/internal/storage"
	"github.com/angelmondragon/phoenix-backend/internal/subscriptions"
	"github.com/angelmondragon/phoenix-backend/internal/users"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/phoenix-backend/pkg/db/types"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
	"github.com/angelmondragon/phoenix-backend/pkg/metrics"
	"github.com/angelmondragon/phoenix-backend/pkg/security"
	pstripe "github.com/angelmondragon/phoenix-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type tokenIssuer interface {
	Issue(ctx context.Context, user *models.User) (*pendingauth.Tokens, error)
}

type tokenStager interface {
	Stage(ctx context.Context, sessionID string, tokens pendingauth.Tokens) error
}

type subscriptionFetcher interface {
	FetchSubscription(ctx context.Context, id string) (*pstripe.Subscription, error)
}

type projectProvisioner interface {
	CreateWithModules(ctx context.Context, req provisioner.ModulesRequest) (*provisioner.Result, error)
	CreateWithWorkflow(ctx context.Context, req provisioner.WorkflowRequest) (*provisioner.Result, error)
}

type EngineParams struct {
	TransactionRunner txRunner
	Invoices          invoices.Repository
	Subscriptions     subscriptions.Repository
	Storage           storage.Repository
	Users             userRepository
	Issuer            tokenIssuer
	PendingAuth       tokenStager
	Stripe            subscriptionFetcher
	Provisioner       projectProvisioner
	Notifier          *notifications.Notifier
	Metrics           *metrics.WebhookMetrics
	Password          config.PasswordConfig
	BaseStorageBytes  int64
	Logger            *logger.Logger
}

// Engine runs the checkout-completed workflow: account creation, invoicing,
// subscription mirroring and project provisioning.
type Engine struct {
	tx            txRunner
	invoices      invoices.Repository
	subscriptions subscriptions.Repository
	storage       storage.Repository
	users         userRepository
	issuer        tokenIssuer
	pending       tokenStager
	stripe        subscriptionFetcher
	provisioner   projectProvisioner
	notifier      *notifications.Notifier
	metrics       *metrics.WebhookMetrics
	password      config.PasswordConfig
	baseStorage   int64
	logg          *logger.Logger
	now           func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Invoices == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice repo required")
	case params.Subscriptions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	case params.Storage == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storage repo required")
	case params.Users == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	case params.Issuer == nil || params.PendingAuth == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token issuer and pending auth required")
	case params.Stripe == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	case params.Provisioner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "project provisioner required")
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
	return &Engine{
		tx:            params.TransactionRunner,
		invoices:      params.Invoices,
		subscriptions: params.Subscriptions,
		storage:       params.Storage,
		users:         params.Users,
		issuer:        params.Issuer,
		pending:       params.PendingAuth,
		stripe:        params.Stripe,
		provisioner:   params.Provisioner,
		notifier:      notifier,
		metrics:       params.Metrics,
		password:      params.Password,
		baseStorage:   base,
		logg:          logg,
		now:           time.Now,
	}, nil
}

// HandleCheckoutCompleted dispatches a completed checkout to its workflow branch.
func (e *Engine) HandleCheckoutCompleted(ctx context.Context, session CheckoutSession) error {
	if session.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	ctx = e.logg.WithField(ctx, "checkout_session_id", session.ID)

	intent, err := ParseIntent(session)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse checkout metadata")
	}

	switch in := intent.(type) {
	case StorageAddonIntent:
		return e.handleStorageAddon(ctx, session, in)
	case PendingRegistrationIntent:
		return e.handlePendingRegistration(ctx, session, in)
	case ExistingUserPaymentIntent:
		return e.handleExistingUserPayment(ctx, session, in)
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unhandled checkout intent %T", intent))
	}
}

func (e *Engine) handleStorageAddon(ctx context.Context, session CheckoutSession, in StorageAddonIntent) error {
	ctx = e.logg.WithClientID(ctx, in.ClientID.String())
	if done, err := e.alreadySettled(ctx, session.ID); err != nil || done {
		return err
	}

	var providerSub *pstripe.Subscription
	if session.SubscriptionID != "" {
		sub, err := e.stripe.FetchSubscription(ctx, session.SubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch storage subscription")
		}
		providerSub = sub
	}

	amountCents := session.AmountTotalCents
	currency := session.Currency
	if providerSub != nil && providerSub.AmountCents > 0 {
		amountCents = providerSub.AmountCents
		if providerSub.Currency != "" {
			currency = providerSub.Currency
		}
	}

	planName := fmt.Sprintf("Stockage supplémentaire +%dGB", in.StorageGB)
	now := e.now().UTC()
	invoice := &models.Invoice{
		ClientID:          in.ClientID,
		Amount:            decimal.New(amountCents, -2),
		Currency:          currency,
		Status:            enums.InvoiceStatusPaid,
		PlanID:            optional(in.StoragePlanID),
		PlanName:          &planName,
		CheckoutSessionID: optional(session.ID),
		PaymentIntentID:   optional(session.PaymentIntentID),
		Metadata: dbtypes.StringMap{
			MetaType:      TypeStorageAddon,
			MetaStorageGB: strconv.FormatInt(in.StorageGB, 10),
		},
		PaidAt: &now,
	}

	var quota *models.StorageQuota
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.invoices.WithTx(tx).Create(ctx, invoice); err != nil {
			return err
		}
		if providerSub != nil {
			if err := e.ensureSubscription(ctx, e.subscriptions.WithTx(tx), in.ClientID, in.StoragePlanID, providerSub); err != nil {
				return err
			}
		}
		q, err := e.storage.WithTx(tx).Increase(ctx, in.ClientID, storage.GBToBytes(in.StorageGB), e.baseStorage)
		quota = q
		return err
	})
	if err != nil {
		return err
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"invoice_id":          invoice.ID.String(),
		"storage_gb":          in.StorageGB,
		"storage_limit_bytes": quota.StorageLimitBytes,
	}), "phoenix.storage_addon_applied")

	e.notifyClient(ctx, in.ClientID, notifications.Message{
		Kind:    enums.NotificationPaymentSuccess,
		Subject: planName,
		Data:    invoiceData(invoice),
	})
	return nil
}

func (e *Engine) handlePendingRegistration(ctx context.Context, session CheckoutSession, in PendingRegistrationIntent) error {
	if done, err := e.alreadySettled(ctx, session.ID); err != nil || done {
		return err
	}

	user, err := e.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return err
	}
	if user != nil {
		e.logg.Warn(e.logg.WithClientID(ctx, user.ID.String()), "phoenix.pending_user_already_exists")
	} else {
		hash := in.PasswordHash
		if in.AuthMethod.IsOAuth() {
			hash, err = security.SyntheticPasswordHash(e.password)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "synthesize password hash")
			}
		}
		user, err = e.users.Create(ctx, users.CreateUserDTO{
			Email:         in.Email,
			PasswordHash:  hash,
			FirstName:     in.FirstName,
			LastName:      in.LastName,
			Company:       in.Company,
			Phone:         in.Phone,
			Roles:         []string{string(enums.UserRoleClient)},
			AuthMethod:    in.AuthMethod,
			EmailVerified: in.AuthMethod.IsOAuth(),
		})
		if err != nil {
			return err
		}
	}
	ctx = e.logg.WithClientID(ctx, user.ID.String())

	tokens, err := e.issuer.Issue(ctx, user)
	if err != nil {
		return err
	}
	if err := e.pending.Stage(ctx, session.ID, *tokens); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "phoenix.pending_auth_stage_failed")
	}

	invoice, err := e.createPaidInvoice(ctx, session, user.ID, in.Plan)
	if err != nil {
		return err
	}

	e.provisionProject(ctx, invoice, in.Plan, session)

	e.notifier.Notify(ctx, notifications.Message{
		Kind:      enums.NotificationWelcome,
		ClientID:  user.ID.String(),
		Recipient: user.Email,
		Data:      map[string]any{"first_name": user.FirstName},
	})
	e.notifier.Notify(ctx, notifications.Message{
		Kind:      enums.NotificationPaymentSuccess,
		ClientID:  user.ID.String(),
		Recipient: user.Email,
		Subject:   invoice.PlanNameValue(),
		Data:      invoiceData(invoice),
	})
	if !in.AuthMethod.IsOAuth() {
		e.notifier.Notify(ctx, notifications.Message{
			Kind:      enums.NotificationEmailVerification,
			ClientID:  user.ID.String(),
			Recipient: user.Email,
			Data:      map[string]any{"first_name": user.FirstName},
		})
	}
	return nil
}

func (e *Engine) handleExistingUserPayment(ctx context.Context, session CheckoutSession, in ExistingUserPaymentIntent) error {
	invoice, err := e.invoices.FindByCheckoutSessionID(ctx, session.ID)
	if err != nil {
		return err
	}
	if invoice == nil {
		e.logg.Warn(ctx, "phoenix.pending_invoice_not_found")
		return nil
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"invoice_id": invoice.ID.String(),
		"client_id":  invoice.ClientID.String(),
	})
	if invoice.Status == enums.InvoiceStatusPaid {
		e.logg.Info(ctx, "phoenix.invoice_already_paid")
		return nil
	}

	paidAt := e.now().UTC()
	if err := e.invoices.MarkPaid(ctx, invoice.ID, session.PaymentIntentID, paidAt); err != nil {
		return err
	}
	invoice.Status = enums.InvoiceStatusPaid
	invoice.PaidAt = &paidAt
	if session.PaymentIntentID != "" {
		invoice.PaymentIntentID = optional(session.PaymentIntentID)
	}

	plan := in.Plan
	if plan.Empty() {
		plan.PlanID = invoice.PlanIDValue()
		plan.PlanName = invoice.PlanNameValue()
	}
	if plan.TotalAmount.IsZero() {
		plan.TotalAmount = invoice.Amount
	}
	e.provisionProject(ctx, invoice, plan, session)

	e.notifyClient(ctx, invoice.ClientID, notifications.Message{
		Kind:    enums.NotificationPaymentSuccess,
		Subject: invoice.PlanNameValue(),
		Data:    invoiceData(invoice),
	})
	return nil
}

func (e *Engine) createPaidInvoice(ctx context.Context, session CheckoutSession, clientID uuid.UUID, plan PlanSelection) (*models.Invoice, error) {
	now := e.now().UTC()
	meta := dbtypes.StringMap{}
	if plan.Case != "" {
		meta[MetaCase] = plan.Case.String()
	}
	if len(plan.Modules) > 0 {
		meta[MetaModuleCount] = strconv.Itoa(len(plan.Modules))
	}
	if session.SubscriptionID != "" {
		meta["subscriptionId"] = session.SubscriptionID
	}

	invoice := &models.Invoice{
		ClientID:          clientID,
		Amount:            plan.TotalAmount,
		Currency:          currencyOr(session.Currency),
		Status:            enums.InvoiceStatusPaid,
		PlanID:            optional(plan.PlanID),
		PlanName:          optional(plan.PlanName),
		CheckoutSessionID: optional(session.ID),
		PaymentIntentID:   optional(session.PaymentIntentID),
		Metadata:          meta,
		PaidAt:            &now,
	}
	err := e.invoices.Create(ctx, invoice)
	if err == nil {
		return invoice, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return nil, err
	}

	// An open invoice for this session already exists; settle it instead.
	existing, findErr := e.invoices.FindByCheckoutSessionID(ctx, session.ID)
	if findErr != nil || existing == nil {
		return nil, err
	}
	if err := e.invoices.MarkPaid(ctx, existing.ID, session.PaymentIntentID, now); err != nil {
		return nil, err
	}
	existing.Status = enums.InvoiceStatusPaid
	existing.PaidAt = &now
	return existing, nil
}

// provisionProject mirrors the subscription and requests downstream project
// creation. Failures are logged; the paid invoice is never rolled back.
func (e *Engine) provisionProject(ctx context.Context, invoice *models.Invoice, plan PlanSelection, session CheckoutSession) {
	ctx = e.logg.WithFields(ctx, map[string]any{
		"invoice_id": invoice.ID.String(),
		"client_id":  invoice.ClientID.String(),
	})

	if session.SubscriptionID != "" && plan.Recurring() {
		sub, err := e.stripe.FetchSubscription(ctx, session.SubscriptionID)
		if err == nil {
			err = e.ensureSubscription(ctx, e.subscriptions, invoice.ClientID, subscriptionPlanID(plan, invoice), sub)
		}
		if err != nil {
			e.logg.Error(e.logg.WithField(ctx, "subscription_id", session.SubscriptionID), "phoenix.subscription_record_failed", err)
		}
	}

	if invoice.PlanID == nil && invoice.PlanName == nil {
		return
	}

	result, err := e.requestProject(ctx, invoice, plan, session)
	if err != nil {
		e.metrics.IncProvisioningFailure()
		e.logg.Critical(e.logg.WithField(ctx, "request_shape", plan.Shape.String()), "phoenix.project_provisioning_failed", err)
		return
	}

	if err := e.invoices.SetProjectID(ctx, invoice.ID, result.ProjectID); err != nil {
		e.logg.Critical(e.logg.WithField(ctx, "project_id", result.ProjectID), "phoenix.project_link_failed", err)
		return
	}
	invoice.ProjectID = &result.ProjectID
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"project_id": result.ProjectID,
		"modules":    result.Modules,
		"briefs":     result.Briefs,
	}), "phoenix.project_provisioned")
}

func (e *Engine) requestProject(ctx context.Context, invoice *models.Invoice, plan PlanSelection, session CheckoutSession) (*provisioner.Result, error) {
	meta := map[string]string{
		"checkoutSessionId": session.ID,
		"invoiceNumber":     invoice.InvoiceNumber,
	}
	if plan.Case != "" {
		meta[MetaCase] = plan.Case.String()
	}

	switch plan.Shape {
	case ShapeModules, ShapeLegacyDual:
		source := plan.Modules
		if plan.Shape == ShapeLegacyDual {
			source = plan.LegacyModules()
		}
		modules := make([]provisioner.Module, 0, len(source))
		for _, m := range source {
			modules = append(modules, provisioner.Module{
				PlanID:     m.PlanID,
				PlanName:   m.PlanName,
				PriceCents: m.PriceCents,
				Type:       string(m.Type),
			})
		}
		return e.provisioner.CreateWithModules(ctx, provisioner.ModulesRequest{
			ClientID:    invoice.ClientID.String(),
			InvoiceID:   invoice.ID.String(),
			TotalBudget: plan.TotalAmount,
			Modules:     modules,
			Metadata:    meta,
		})
	default:
		return e.provisioner.CreateWithWorkflow(ctx, provisioner.WorkflowRequest{
			ClientID:  invoice.ClientID.String(),
			InvoiceID: invoice.ID.String(),
			Budget:    invoice.Amount,
			PlanID:    invoice.PlanIDValue(),
			PlanName:  invoice.PlanNameValue(),
			Metadata:  meta,
		})
	}
}

func (e *Engine) ensureSubscription(ctx context.Context, repo subscriptions.Repository, clientID uuid.UUID, planID string, sub *pstripe.Subscription) error {
	existing, err := repo.FindByExternalID(ctx, sub.ID)
	if err != nil || existing != nil {
		return err
	}
	row, err := subscriptions.BuildFromProvider(clientID, planID, sub)
	if err != nil {
		return err
	}
	if err := repo.Create(ctx, row); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return err
	}
	return nil
}

// alreadySettled reports whether a paid invoice exists for the session, which
// means a previous delivery completed this workflow.
func (e *Engine) alreadySettled(ctx context.Context, sessionID string) (bool, error) {
	existing, err := e.invoices.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Status == enums.InvoiceStatusPaid {
		e.logg.Info(e.logg.WithField(ctx, "invoice_id", existing.ID.String()), "phoenix.checkout_already_settled")
		return true, nil
	}
	return false, nil
}

func (e *Engine) notifyClient(ctx context.Context, clientID uuid.UUID, msg notifications.Message) {
	e.notifier.BestEffort(ctx, string(msg.Kind), func(ctx context.Context) error {
		user, err := e.users.FindByID(ctx, clientID)
		if err != nil {
			return err
		}
		if user == nil {
			return errors.New("client not found")
		}
		msg.ClientID = clientID.String()
		msg.Recipient = user.Email
		e.notifier.Notify(ctx, msg)
		return nil
	})
}

func subscriptionPlanID(plan PlanSelection, invoice *models.Invoice) string {
	if plan.Legacy.WebPlanID != "" {
		return plan.Legacy.WebPlanID
	}
	for _, m := range plan.Modules {
		if m.Type == enums.ModuleTypeWeb {
			return m.PlanID
		}
	}
	return invoice.PlanIDValue()
}

func invoiceData(invoice *models.Invoice) map[string]any {
	return map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"amount":         invoice.Amount.StringFixed(2),
		"currency":       invoice.Currency,
		"plan_name":      invoice.PlanNameValue(),
	}
}

func currencyOr(currency string) string {
	if currency == "" {
		return "eur"
	}
	return currency
}
