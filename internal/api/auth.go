package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/telegive/bot-service/internal/services"
)

// RequireServiceToken rejects requests whose X-Service-Token header does not
// equal secret. An empty secret rejects everything.
func RequireServiceToken(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(services.HeaderServiceToken)
			if secret == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.WarnContext(r.Context(), "Service token rejected", "path", r.URL.Path, "token_present", token != "")
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   "Authentication failed",
					"message": "Invalid or missing service token",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
