package pendingauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/phoenix-backend/pkg/auth"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type stubInvoices struct {
	bySession map[string]*models.Invoice
}

func (s *stubInvoices) FindByCheckoutSessionID(_ context.Context, id string) (*models.Invoice, error) {
	return s.bySession[id], nil
}

type stubUsers struct {
	byID map[uuid.UUID]*models.User
}

func (s *stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return s.byID[id], nil
}

type stubRefreshStore struct {
	hashes []string
}

func (s *stubRefreshStore) CreateRefreshToken(_ context.Context, _ uuid.UUID, hash string, _ time.Time) error {
	s.hashes = append(s.hashes, hash)
	return nil
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, Tokens) error { return errors.New("down") }
func (failingStore) Get(context.Context, string) (*Tokens, error) {
	return nil, errors.New("down")
}
func (failingStore) Sweep(context.Context) (int, error) { return 0, nil }

var jwtCfg = config.JWTConfig{Secret: "test-secret", Issuer: "phoenix", ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}

func newExchange(t *testing.T, store Store, invoices map[string]*models.Invoice, users map[uuid.UUID]*models.User) (*Exchange, *stubRefreshStore) {
	t.Helper()
	refresh := &stubRefreshStore{}
	ex, err := NewExchange(ExchangeParams{
		Store:    store,
		Invoices: &stubInvoices{bySession: invoices},
		Users:    &stubUsers{byID: users},
		Issuer:   NewIssuer(jwtCfg, refresh),
		Logger:   logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	return ex, refresh
}

func TestSessionReturnsStagedTokens(t *testing.T) {
	cache := NewCache(CacheOptions{})
	ex, refresh := newExchange(t, cache, nil, nil)
	ctx := context.Background()

	if err := ex.Stage(ctx, "cs_1", Tokens{AccessToken: "staged"}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	got, err := ex.Session(ctx, "cs_1")
	if err != nil || got.AccessToken != "staged" {
		t.Fatalf("expected staged tokens, got %+v %v", got, err)
	}
	if len(refresh.hashes) != 0 {
		t.Fatalf("staged path must not mint tokens")
	}
}

func TestSessionFallbackMintsFromPaidInvoice(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "new@x.io", Roles: []string{"client"}}
	invoices := map[string]*models.Invoice{
		"cs_paid":    {ClientID: user.ID, Status: enums.InvoiceStatusPaid},
		"cs_pending": {ClientID: user.ID, Status: enums.InvoiceStatusPending},
		"cs_orphan":  {ClientID: uuid.New(), Status: enums.InvoiceStatusPaid},
	}
	ex, refresh := newExchange(t, failingStore{}, invoices, map[uuid.UUID]*models.User{user.ID: user})
	ctx := context.Background()

	got, err := ex.Session(ctx, "cs_paid")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if got.UserID != user.ID.String() || got.Email != "new@x.io" {
		t.Fatalf("unexpected tokens %+v", got)
	}
	claims, err := auth.ParseAccessToken(jwtCfg, got.AccessToken)
	if err != nil || claims.UserID != user.ID {
		t.Fatalf("invalid access token: %v", err)
	}
	if len(refresh.hashes) != 1 || refresh.hashes[0] != auth.HashRefreshToken(got.RefreshToken) {
		t.Fatalf("expected refresh digest persisted")
	}

	if _, err := ex.Session(ctx, "cs_pending"); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for unpaid invoice, got %v", err)
	}
	if _, err := ex.Session(ctx, "cs_missing"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
	if _, err := ex.Session(ctx, "cs_orphan"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}
	if _, err := ex.Session(ctx, " "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank session, got %v", err)
	}
}
