package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/phoenix-backend/api/responses"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
)

// Pinger is implemented by the database and cache clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports liveness. It never touches dependencies.
func Health(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteJSON(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Service:   service,
			Timestamp: time.Now().UTC(),
		})
	}
}

// HealthReady pings every named dependency; nil pingers are skipped.
func HealthReady(deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		failed := false
		for name, p := range deps {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "health.dependency_down")
				checks[name] = "down"
				failed = true
				continue
			}
			checks[name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
