package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/phoenix-backend/api/responses"
	"github.com/angelmondragon/phoenix-backend/api/validators"
	"github.com/angelmondragon/phoenix-backend/internal/pendingauth"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

type SessionExchange interface {
	Session(ctx context.Context, sessionID string) (*pendingauth.Tokens, error)
}

type sessionResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
}

// AuthSession returns the tokens minted for the account created by checkout
// session {sessionId}.
func AuthSession(exchange SessionExchange, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if exchange == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session exchange unavailable"))
			return
		}

		sessionID := validators.SanitizeString(chi.URLParam(r, "sessionId"), 255)
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		tokens, err := exchange.Session(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			UserID:       tokens.UserID,
			Email:        tokens.Email,
		})
	}
}
