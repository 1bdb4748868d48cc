package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/stockpile-wms/stockpile/internal/platform/httpx"
	"github.com/stockpile-wms/stockpile/internal/shared"
)

// Middleware rejects unauthenticated requests and stores the actor id
// in the request context.
func Middleware(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing authorization header", "")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "expected bearer token", "")
				return
			}
			actorID, err := ParseActorID(secret, parts[1])
			if err != nil {
				logger.Warn("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token", "")
				return
			}
			ctx := shared.ContextWithActor(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
