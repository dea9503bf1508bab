package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/phoenix-backend/internal/invoices"
	"github.com/angelmondragon/phoenix-backend/internal/phoenix"
	"github.com/angelmondragon/phoenix-backend/internal/users"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/phoenix-backend/pkg/db/types"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
	"github.com/angelmondragon/phoenix-backend/pkg/security"
	pstripe "github.com/angelmondragon/phoenix-backend/pkg/stripe"
)

// Stripe rejects metadata values longer than this.
const maxMetadataValueLen = 500

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, in pstripe.CheckoutSessionInput) (*pstripe.CheckoutSession, error)
}

type clientLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service opens provider checkouts carrying the metadata the settlement
// workflow consumes.
type Service interface {
	CreateSession(ctx context.Context, input SessionInput) (*SessionResult, error)
	CreateStorageAddonSession(ctx context.Context, input StorageAddonInput) (*SessionResult, error)
}

type ModuleInput struct {
	PlanID     string `json:"planId" validate:"required,max=64"`
	PlanName   string `json:"planName" validate:"required,max=120"`
	PriceCents int64  `json:"priceCents" validate:"gt=0"`
	Type       string `json:"type" validate:"required,oneof=web production"`
}

type PendingUserInput struct {
	FirstName  string  `json:"firstName" validate:"required,max=80"`
	LastName   string  `json:"lastName" validate:"max=80"`
	Password   string  `json:"password" validate:"omitempty,min=8,max=128"`
	Company    *string `json:"company" validate:"omitempty,max=120"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
	AuthMethod string  `json:"authMethod" validate:"omitempty,oneof=password google oauth linkedin microsoft"`
}

// SessionInput is either an existing client (ClientID) or a pending sign-up (PendingUser).
type SessionInput struct {
	Email       string            `json:"email" validate:"required,email"`
	ClientID    *uuid.UUID        `json:"clientId"`
	Case        string            `json:"case" validate:"omitempty,oneof=A B C a b c"`
	Modules     []ModuleInput     `json:"modules" validate:"required,min=1,max=10,dive"`
	PendingUser *PendingUserInput `json:"pendingUser" validate:"omitempty"`
}

type StorageAddonInput struct {
	ClientID      uuid.UUID `json:"clientId" validate:"required"`
	StoragePlanID string    `json:"storagePlanId" validate:"required,max=64"`
	StorageGB     int64     `json:"storageGb" validate:"gt=0,lte=10000"`
	PriceCents    int64     `json:"priceCents" validate:"gt=0"`
}

type SessionResult struct {
	SessionID string     `json:"sessionId"`
	URL       string     `json:"url"`
	InvoiceID *uuid.UUID `json:"invoiceId,omitempty"`
	Case      string     `json:"case,omitempty"`
}

type ServiceParams struct {
	Stripe   sessionCreator
	Invoices invoices.Repository
	Users    clientLookup
	Password config.PasswordConfig
	Currency string
	Logger   *logger.Logger
}

type service struct {
	stripe   sessionCreator
	invoices invoices.Repository
	users    clientLookup
	password config.PasswordConfig
	currency string
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe session creator required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "eur"
	}
	return &service{
		stripe:   params.Stripe,
		invoices: params.Invoices,
		users:    params.Users,
		password: params.Password,
		currency: currency,
		logg:     logg,
	}, nil
}

func (s *service) CreateSession(ctx context.Context, input SessionInput) (*SessionResult, error) {
	email := users.NormalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if (input.ClientID == nil) == (input.PendingUser == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of clientId or pendingUser is required")
	}

	modules := toModules(input.Modules)
	checkoutCase, err := resolveCase(input.Case, modules)
	if err != nil {
		return nil, err
	}
	plan := phoenix.DerivePlan(checkoutCase, modules, phoenix.LegacyPlans{})

	meta, err := planMetadata(checkoutCase, modules)
	if err != nil {
		return nil, err
	}

	var client *models.User
	if input.ClientID != nil {
		client, err = s.users.FindByID(ctx, *input.ClientID)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
		}
		meta[phoenix.MetaClientID] = client.ID.String()
	} else {
		if err := s.pendingUserMetadata(ctx, meta, email, *input.PendingUser); err != nil {
			return nil, err
		}
	}

	lineItems := make([]pstripe.LineItem, 0, len(modules))
	for _, m := range modules {
		lineItems = append(lineItems, pstripe.LineItem{
			Name:        m.PlanName,
			AmountCents: m.PriceCents,
			Recurring:   m.Type == enums.ModuleTypeWeb,
		})
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, pstripe.CheckoutSessionInput{
		CustomerEmail: email,
		LineItems:     lineItems,
		Metadata:      meta,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	ctx = s.logg.WithField(ctx, "checkout_session_id", session.ID)

	result := &SessionResult{SessionID: session.ID, URL: session.URL, Case: checkoutCase.String()}
	if client == nil {
		s.logg.Info(ctx, "checkout.pending_registration_session_created")
		return result, nil
	}

	// Existing clients settle a pre-registered invoice when the checkout completes.
	invoice := &models.Invoice{
		ClientID:          client.ID,
		Amount:            totalFromModules(modules),
		Currency:          s.currency,
		Status:            enums.InvoiceStatusPending,
		PlanID:            optional(plan.PlanID),
		PlanName:          optional(plan.PlanName),
		CheckoutSessionID: &session.ID,
		Metadata:          dbtypes.StringMap{phoenix.MetaCase: checkoutCase.String()},
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, err
	}
	result.InvoiceID = &invoice.ID
	s.logg.Info(s.logg.WithClientID(ctx, client.ID.String()), "checkout.client_session_created")
	return result, nil
}

func (s *service) CreateStorageAddonSession(ctx context.Context, input StorageAddonInput) (*SessionResult, error) {
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clientId is required")
	}
	if input.StorageGB <= 0 || input.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storageGb and priceCents must be positive")
	}
	client, err := s.users.FindByID(ctx, input.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, pstripe.CheckoutSessionInput{
		CustomerEmail: client.Email,
		LineItems: []pstripe.LineItem{{
			Name:        fmt.Sprintf("Stockage supplémentaire +%dGB", input.StorageGB),
			AmountCents: input.PriceCents,
			Recurring:   true,
		}},
		Metadata: map[string]string{
			phoenix.MetaType:          phoenix.TypeStorageAddon,
			phoenix.MetaClientID:      client.ID.String(),
			phoenix.MetaStoragePlanID: input.StoragePlanID,
			phoenix.MetaStorageGB:     strconv.FormatInt(input.StorageGB, 10),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create storage addon session")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": session.ID,
		"client_id":           client.ID.String(),
		"storage_gb":          input.StorageGB,
	}), "checkout.storage_addon_session_created")
	return &SessionResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *service) pendingUserMetadata(ctx context.Context, meta map[string]string, email string, pending PendingUserInput) error {
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "an account already exists for this email")
	}

	method := enums.ParseAuthMethod(pending.AuthMethod)
	meta[phoenix.MetaPendingEmail] = email
	meta[phoenix.MetaPendingFirstName] = strings.TrimSpace(pending.FirstName)
	meta[phoenix.MetaPendingLastName] = strings.TrimSpace(pending.LastName)
	meta[phoenix.MetaAuthMethod] = string(method)
	if pending.Company != nil && strings.TrimSpace(*pending.Company) != "" {
		meta[phoenix.MetaPendingCompany] = strings.TrimSpace(*pending.Company)
	}
	if pending.Phone != nil && strings.TrimSpace(*pending.Phone) != "" {
		meta[phoenix.MetaPendingPhone] = strings.TrimSpace(*pending.Phone)
	}

	if method.IsOAuth() {
		return nil
	}
	if pending.Password == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "password is required").
			WithDetails(map[string]string{"pendingUser.password": "is required"})
	}
	hash, err := security.HashPassword(pending.Password, s.password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	meta[phoenix.MetaPendingPassword] = hash
	return nil
}

// planMetadata writes the module list plus the legacy plan keys older
// consumers read.
func planMetadata(c enums.CheckoutCase, modules []phoenix.Module) (map[string]string, error) {
	raw, err := json.Marshal(modules)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode modules")
	}
	if len(raw) > maxMetadataValueLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many modules for a single checkout").
			WithDetails(map[string]string{"modules": fmt.Sprintf("encoded size %d exceeds %d", len(raw), maxMetadataValueLen)})
	}

	total := totalFromModules(modules)
	meta := map[string]string{
		phoenix.MetaCase:             c.String(),
		phoenix.MetaModulesJSON:      string(raw),
		phoenix.MetaModuleCount:      strconv.Itoa(len(modules)),
		phoenix.MetaTotalAmount:      total.StringFixed(2),
		phoenix.MetaTotalAmountCents: total.Shift(2).StringFixed(0),
	}

	var prodIDs, prodNames []string
	for _, m := range modules {
		if m.Type == enums.ModuleTypeWeb {
			if meta[phoenix.MetaWebPlanID] == "" {
				meta[phoenix.MetaWebPlanID] = m.PlanID
				meta[phoenix.MetaWebPlanName] = m.PlanName
			}
			continue
		}
		prodIDs = append(prodIDs, m.PlanID)
		prodNames = append(prodNames, m.PlanName)
	}
	if len(prodIDs) > 0 {
		meta[phoenix.MetaProductionPlanID] = strings.Join(prodIDs, ",")
		meta[phoenix.MetaProductionPlanNames] = strings.Join(prodNames, ",")
	}
	for k, v := range meta {
		if len(v) > maxMetadataValueLen {
			delete(meta, k)
		}
	}
	return meta, nil
}

// resolveCase validates an explicit case against the modules or derives one.
func resolveCase(raw string, modules []phoenix.Module) (enums.CheckoutCase, error) {
	var web, production int
	for _, m := range modules {
		if m.Type == enums.ModuleTypeWeb {
			web++
		} else {
			production++
		}
	}
	if web > 1 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at most one web plan per checkout")
	}

	derived := enums.CheckoutCaseProductionOnly
	switch {
	case web == 1 && production > 0:
		derived = enums.CheckoutCaseMixed
	case web == 1:
		derived = enums.CheckoutCaseWebOnly
	}
	if strings.TrimSpace(raw) == "" {
		return derived, nil
	}
	c, err := enums.ParseCheckoutCase(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid case")
	}
	if c != derived {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("case %s does not match the selected modules (%s)", c, derived))
	}
	return c, nil
}

func toModules(in []ModuleInput) []phoenix.Module {
	out := make([]phoenix.Module, 0, len(in))
	for _, m := range in {
		out = append(out, phoenix.Module{
			PlanID:     strings.TrimSpace(m.PlanID),
			PlanName:   strings.TrimSpace(m.PlanName),
			PriceCents: m.PriceCents,
			Type:       enums.ModuleType(strings.ToLower(strings.TrimSpace(m.Type))),
		})
	}
	return out
}

func totalFromModules(modules []phoenix.Module) decimal.Decimal {
	var cents int64
	for _, m := range modules {
		cents += m.PriceCents
	}
	return decimal.New(cents, -2)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
