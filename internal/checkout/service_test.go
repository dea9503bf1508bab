package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/internal/invoices"
	"github.com/angelmondragon/phoenix-backend/internal/phoenix"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	pstripe "github.com/angelmondragon/phoenix-backend/pkg/stripe"
)

type stubStripe struct {
	inputs []pstripe.CheckoutSessionInput
	err    error
}

func (s *stubStripe) CreateCheckoutSession(_ context.Context, in pstripe.CheckoutSessionInput) (*pstripe.CheckoutSession, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return &pstripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type stubInvoices struct {
	invoices.Repository
	created []*models.Invoice
}

func (s *stubInvoices) WithTx(*gorm.DB) invoices.Repository { return s }

func (s *stubInvoices) Create(_ context.Context, invoice *models.Invoice) error {
	invoice.ID = uuid.New()
	s.created = append(s.created, invoice)
	return nil
}

type stubUsers struct {
	byID    map[uuid.UUID]*models.User
	byEmail map[string]*models.User
}

func (s *stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return s.byID[id], nil
}

func (s *stubUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.byEmail[email], nil
}

func fastPassword() config.PasswordConfig {
	return config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
}

func newTestService(t *testing.T, stripe *stubStripe, inv *stubInvoices, users *stubUsers) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Stripe: stripe, Invoices: inv, Users: users, Password: fastPassword()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreateSessionPendingUserWritesMetadata(t *testing.T) {
	stripe := &stubStripe{}
	inv := &stubInvoices{}
	svc := newTestService(t, stripe, inv, &stubUsers{})

	result, err := svc.CreateSession(context.Background(), SessionInput{
		Email: " New@Client.io ",
		Modules: []ModuleInput{
			{PlanID: "video", PlanName: "Video", PriceCents: 5000, Type: "production"},
			{PlanID: "growth", PlanName: "Growth", PriceCents: 9900, Type: "web"},
		},
		PendingUser: &PendingUserInput{FirstName: "Ada", LastName: "L", Password: "correct horse"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if result.SessionID != "cs_test_1" || result.Case != "C" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(inv.created) != 0 {
		t.Fatalf("pending sign-ups must not pre-create invoices")
	}

	in := stripe.inputs[0]
	meta := in.Metadata
	if meta[phoenix.MetaPendingEmail] != "new@client.io" {
		t.Fatalf("unexpected pending email %q", meta[phoenix.MetaPendingEmail])
	}
	if meta[phoenix.MetaPendingPassword] == "" || meta[phoenix.MetaPendingPassword] == "correct horse" {
		t.Fatalf("expected hashed password in metadata")
	}
	if meta[phoenix.MetaTotalAmount] != "149.00" || meta[phoenix.MetaTotalAmountCents] != "14900" {
		t.Fatalf("unexpected totals %q %q", meta[phoenix.MetaTotalAmount], meta[phoenix.MetaTotalAmountCents])
	}
	if meta[phoenix.MetaWebPlanID] != "growth" || meta[phoenix.MetaProductionPlanID] != "video" {
		t.Fatalf("unexpected legacy plan keys %v", meta)
	}

	var modules []phoenix.Module
	if err := json.Unmarshal([]byte(meta[phoenix.MetaModulesJSON]), &modules); err != nil {
		t.Fatalf("modulesJson: %v", err)
	}
	if len(modules) != 2 || meta[phoenix.MetaModuleCount] != "2" {
		t.Fatalf("unexpected modules %v", modules)
	}
	if !in.LineItems[1].Recurring || in.LineItems[0].Recurring {
		t.Fatalf("only web modules recur: %+v", in.LineItems)
	}

	// The workflow must read back the same intent.
	intent, err := phoenix.ParseIntent(phoenix.CheckoutSession{ID: "cs_test_1", Metadata: meta})
	if err != nil {
		t.Fatalf("parse intent: %v", err)
	}
	reg, ok := intent.(phoenix.PendingRegistrationIntent)
	if !ok {
		t.Fatalf("expected pending registration, got %T", intent)
	}
	if reg.Plan.PlanName != "Growth + Video" || !reg.Plan.TotalAmount.Equal(decimal.RequireFromString("149")) {
		t.Fatalf("unexpected plan %+v", reg.Plan)
	}
}

func TestCreateSessionExistingClientPreCreatesInvoice(t *testing.T) {
	clientID := uuid.New()
	stripe := &stubStripe{}
	inv := &stubInvoices{}
	users := &stubUsers{byID: map[uuid.UUID]*models.User{clientID: {ID: clientID, Email: "c@x.io"}}}
	svc := newTestService(t, stripe, inv, users)

	result, err := svc.CreateSession(context.Background(), SessionInput{
		Email:    "c@x.io",
		ClientID: &clientID,
		Modules:  []ModuleInput{{PlanID: "logo", PlanName: "Logo", PriceCents: 20000, Type: "production"}},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(inv.created) != 1 || result.InvoiceID == nil {
		t.Fatalf("expected pending invoice")
	}
	created := inv.created[0]
	if created.Status != enums.InvoiceStatusPending || *created.CheckoutSessionID != "cs_test_1" {
		t.Fatalf("unexpected invoice %+v", created)
	}
	if !created.Amount.Equal(decimal.NewFromInt(200)) || created.PlanIDValue() != "logo" {
		t.Fatalf("unexpected amount or plan %s %s", created.Amount, created.PlanIDValue())
	}
	if _, ok := stripe.inputs[0].Metadata[phoenix.MetaPendingEmail]; ok {
		t.Fatalf("existing clients must not carry pending user fields")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	clientID := uuid.New()
	existing := &models.User{ID: uuid.New(), Email: "taken@x.io"}
	users := &stubUsers{byEmail: map[string]*models.User{"taken@x.io": existing}}
	web := ModuleInput{PlanID: "growth", PlanName: "Growth", PriceCents: 100, Type: "web"}

	cases := []struct {
		name  string
		input SessionInput
		code  pkgerrors.Code
	}{
		{"both identities", SessionInput{Email: "a@b.io", ClientID: &clientID, PendingUser: &PendingUserInput{FirstName: "A"}, Modules: []ModuleInput{web}}, pkgerrors.CodeValidation},
		{"no identity", SessionInput{Email: "a@b.io", Modules: []ModuleInput{web}}, pkgerrors.CodeValidation},
		{"case mismatch", SessionInput{Email: "a@b.io", Case: "B", PendingUser: &PendingUserInput{FirstName: "A", Password: "password1"}, Modules: []ModuleInput{web}}, pkgerrors.CodeValidation},
		{"two web plans", SessionInput{Email: "a@b.io", PendingUser: &PendingUserInput{FirstName: "A", Password: "password1"}, Modules: []ModuleInput{web, web}}, pkgerrors.CodeValidation},
		{"missing password", SessionInput{Email: "a@b.io", PendingUser: &PendingUserInput{FirstName: "A"}, Modules: []ModuleInput{web}}, pkgerrors.CodeValidation},
		{"email taken", SessionInput{Email: "taken@x.io", PendingUser: &PendingUserInput{FirstName: "A", Password: "password1"}, Modules: []ModuleInput{web}}, pkgerrors.CodeConflict},
		{"unknown client", SessionInput{Email: "a@b.io", ClientID: &clientID, Modules: []ModuleInput{web}}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stripe := &stubStripe{}
			svc := newTestService(t, stripe, &stubInvoices{}, users)
			_, err := svc.CreateSession(context.Background(), tc.input)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if len(stripe.inputs) != 0 {
				t.Fatalf("provider must not be called on rejected input")
			}
		})
	}
}

func TestCreateSessionOAuthSkipsPassword(t *testing.T) {
	stripe := &stubStripe{}
	svc := newTestService(t, stripe, &stubInvoices{}, &stubUsers{})

	_, err := svc.CreateSession(context.Background(), SessionInput{
		Email:       "o@x.io",
		Modules:     []ModuleInput{{PlanID: "logo", PlanName: "Logo", PriceCents: 100, Type: "production"}},
		PendingUser: &PendingUserInput{FirstName: "O", AuthMethod: "google"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	meta := stripe.inputs[0].Metadata
	if _, ok := meta[phoenix.MetaPendingPassword]; ok {
		t.Fatalf("oauth sign-ups carry no password hash")
	}
	if meta[phoenix.MetaAuthMethod] != "google" {
		t.Fatalf("unexpected auth method %q", meta[phoenix.MetaAuthMethod])
	}
}

func TestCreateSessionProviderFailureIsDependency(t *testing.T) {
	stripe := &stubStripe{err: errors.New("stripe down")}
	svc := newTestService(t, stripe, &stubInvoices{}, &stubUsers{})

	_, err := svc.CreateSession(context.Background(), SessionInput{
		Email:       "a@b.io",
		Modules:     []ModuleInput{{PlanID: "logo", PlanName: "Logo", PriceCents: 100, Type: "production"}},
		PendingUser: &PendingUserInput{FirstName: "A", Password: "password1"},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCreateStorageAddonSession(t *testing.T) {
	clientID := uuid.New()
	stripe := &stubStripe{}
	users := &stubUsers{byID: map[uuid.UUID]*models.User{clientID: {ID: clientID, Email: "c@x.io"}}}
	svc := newTestService(t, stripe, &stubInvoices{}, users)

	if _, err := svc.CreateStorageAddonSession(context.Background(), StorageAddonInput{
		ClientID: clientID, StoragePlanID: "storage_10", StorageGB: 10, PriceCents: 1500,
	}); err != nil {
		t.Fatalf("create addon session: %v", err)
	}
	in := stripe.inputs[0]
	intent, err := phoenix.ParseIntent(phoenix.CheckoutSession{ID: "cs", Metadata: in.Metadata})
	if err != nil {
		t.Fatalf("parse intent: %v", err)
	}
	addon, ok := intent.(phoenix.StorageAddonIntent)
	if !ok || addon.StorageGB != 10 || addon.ClientID != clientID {
		t.Fatalf("unexpected addon intent %#v", intent)
	}
	if !in.LineItems[0].Recurring || in.CustomerEmail != "c@x.io" {
		t.Fatalf("unexpected line items %+v", in)
	}
}
