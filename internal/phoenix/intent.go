package phoenix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/phoenix-backend/pkg/enums"
)

// Metadata keys written at checkout-session creation.
const (
	MetaType                = "type"
	MetaClientID            = "clientId"
	MetaStoragePlanID       = "storagePlanId"
	MetaStorageGB           = "storageGb"
	MetaCase                = "case"
	MetaPendingEmail        = "pendingUserEmail"
	MetaPendingFirstName    = "pendingUserFirstName"
	MetaPendingLastName     = "pendingUserLastName"
	MetaPendingPassword     = "pendingUserHashedPassword"
	MetaPendingCompany      = "pendingUserCompany"
	MetaPendingPhone        = "pendingUserPhone"
	MetaAuthMethod          = "authMethod"
	MetaWebPlanID           = "webPlanId"
	MetaWebPlanName         = "webPlanName"
	MetaProductionPlanID    = "productionPlanId"
	MetaProductionPlanNames = "productionPlanNames"
	MetaModulesJSON         = "modulesJson"
	MetaModuleCount         = "moduleCount"
	MetaTotalAmount         = "totalAmount"
	MetaTotalAmountCents    = "totalAmountCents"

	TypeStorageAddon = "storage_addon"
)

// ErrInvalidIntent marks checkout metadata that cannot be turned into a workflow.
var ErrInvalidIntent = errors.New("invalid checkout intent")

// CheckoutSession is a completed provider checkout as seen by the workflow.
type CheckoutSession struct {
	ID               string
	PaymentIntentID  string
	SubscriptionID   string
	CustomerID       string
	CustomerEmail    string
	AmountTotalCents int64
	Currency         string
	Metadata         map[string]string
}

// Intent is what a completed checkout asks the workflow to do. It is one of
// StorageAddonIntent, PendingRegistrationIntent or ExistingUserPaymentIntent.
type Intent interface {
	intent()
}

type StorageAddonIntent struct {
	ClientID      uuid.UUID
	StoragePlanID string
	StorageGB     int64
}

type PendingRegistrationIntent struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Company      *string
	Phone        *string
	AuthMethod   enums.AuthMethod
	Plan         PlanSelection
}

type ExistingUserPaymentIntent struct {
	Plan PlanSelection
}

func (StorageAddonIntent) intent()        {}
func (PendingRegistrationIntent) intent() {}
func (ExistingUserPaymentIntent) intent() {}

// ParseIntent validates the metadata bag once. The first matching branch wins:
// storage addon, then pending registration, then existing-user payment.
func ParseIntent(session CheckoutSession) (Intent, error) {
	meta := session.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	if strings.TrimSpace(meta[MetaType]) == TypeStorageAddon {
		return parseStorageAddon(meta)
	}

	plan, err := planFromMetadata(meta, session.AmountTotalCents)
	if err != nil {
		return nil, err
	}

	if email := strings.TrimSpace(meta[MetaPendingEmail]); email != "" {
		return parsePendingRegistration(meta, email, plan)
	}
	return ExistingUserPaymentIntent{Plan: plan}, nil
}

func parseStorageAddon(meta map[string]string) (Intent, error) {
	clientID, err := uuid.Parse(strings.TrimSpace(meta[MetaClientID]))
	if err != nil {
		return nil, fmt.Errorf("%w: storage addon client id: %v", ErrInvalidIntent, err)
	}
	gb, err := strconv.ParseInt(strings.TrimSpace(meta[MetaStorageGB]), 10, 64)
	if err != nil || gb <= 0 {
		return nil, fmt.Errorf("%w: storage addon size %q", ErrInvalidIntent, meta[MetaStorageGB])
	}
	return StorageAddonIntent{
		ClientID:      clientID,
		StoragePlanID: strings.TrimSpace(meta[MetaStoragePlanID]),
		StorageGB:     gb,
	}, nil
}

func parsePendingRegistration(meta map[string]string, email string, plan PlanSelection) (Intent, error) {
	method := enums.ParseAuthMethod(meta[MetaAuthMethod])
	hash := strings.TrimSpace(meta[MetaPendingPassword])
	if hash == "" && !method.IsOAuth() {
		return nil, fmt.Errorf("%w: password hash required for %s sign-up", ErrInvalidIntent, method)
	}
	firstName := strings.TrimSpace(meta[MetaPendingFirstName])
	if firstName == "" {
		return nil, fmt.Errorf("%w: first name required", ErrInvalidIntent)
	}
	return PendingRegistrationIntent{
		Email:        email,
		FirstName:    firstName,
		LastName:     strings.TrimSpace(meta[MetaPendingLastName]),
		PasswordHash: hash,
		Company:      optional(meta[MetaPendingCompany]),
		Phone:        optional(meta[MetaPendingPhone]),
		AuthMethod:   method,
		Plan:         plan,
	}, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
