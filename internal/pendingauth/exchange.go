package pendingauth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type invoiceFinder interface {
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Invoice, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type tokenIssuer interface {
	Issue(ctx context.Context, user *models.User) (*Tokens, error)
}

type ExchangeParams struct {
	Store    Store
	Invoices invoiceFinder
	Users    userFinder
	Issuer   tokenIssuer
	Logger   *logger.Logger
}

// Exchange hands the tokens of a freshly registered account to the client that
// just completed checkout.
type Exchange struct {
	store    Store
	invoices invoiceFinder
	users    userFinder
	issuer   tokenIssuer
	logg     *logger.Logger
}

func NewExchange(params ExchangeParams) (*Exchange, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pending auth store required")
	}
	if params.Invoices == nil || params.Users == nil || params.Issuer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fallback dependencies required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Exchange{
		store:    params.Store,
		invoices: params.Invoices,
		users:    params.Users,
		issuer:   params.Issuer,
		logg:     logg,
	}, nil
}

// Stage records tokens for sessionID.
func (e *Exchange) Stage(ctx context.Context, sessionID string, tokens Tokens) error {
	return e.store.Put(ctx, sessionID, tokens)
}

// Session returns the staged tokens, or mints a fresh pair from the paid
// invoice of the session when nothing is staged.
func (e *Exchange) Session(ctx context.Context, sessionID string) (*Tokens, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	staged, err := e.store.Get(ctx, sessionID)
	if err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "pending_auth.store_unavailable")
	}
	if staged != nil {
		return staged, nil
	}

	invoice, err := e.invoices.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
	}
	if invoice.Status != enums.InvoiceStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not completed")
	}

	user, err := e.users.FindByID(ctx, invoice.ClientID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	e.logg.Info(e.logg.WithClientID(ctx, user.ID.String()), "pending_auth.fallback_issued")
	return e.issuer.Issue(ctx, user)
}
