package pendingauth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/phoenix-backend/pkg/auth"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

type refreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
}

// Issuer mints an access/refresh pair and persists the refresh token digest.
type Issuer struct {
	cfg    config.JWTConfig
	tokens refreshTokenStore
	now    func() time.Time
}

func NewIssuer(cfg config.JWTConfig, tokens refreshTokenStore) *Issuer {
	return &Issuer{cfg: cfg, tokens: tokens, now: time.Now}
}

func (i *Issuer) Issue(ctx context.Context, user *models.User) (*Tokens, error) {
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	now := i.now().UTC()

	access, err := auth.MintAccessToken(i.cfg, now, auth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  []string(user.Roles),
		JTI:    uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate refresh token")
	}
	ttl := i.cfg.RefreshTokenTTL()
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if err := i.tokens.CreateRefreshToken(ctx, user.ID, auth.HashRefreshToken(refresh), now.Add(ttl)); err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       user.ID.String(),
		Email:        user.Email,
		CreatedAt:    now,
	}, nil
}
