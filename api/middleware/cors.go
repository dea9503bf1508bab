package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the onboarding front-end to call the checkout and session handoff routes.
// Webhooks are server-to-server and unaffected.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
