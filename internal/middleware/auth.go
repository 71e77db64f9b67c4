package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fragenkreuzen/backend/internal/httputil"
	"github.com/fragenkreuzen/backend/internal/models"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// TokenParser resolves a bearer token to the user id it was issued for.
type TokenParser interface {
	Parse(token string) (int64, error)
}

// AdminChecker reports whether a user may use the admin endpoints.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(userIDKey).(int64)
	return uid, ok
}

// Auth rejects requests without a valid "Authorization: Bearer <token>" header
// and stores the token's user id in the request context.
func Auth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				httputil.Unauthorized(w)
				return
			}

			userID, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				slog.DebugContext(r.Context(), "rejected token", "error", err)
				httputil.Unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// Admin must run after Auth.
func Admin(users AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				httputil.Unauthorized(w)
				return
			}

			admin, err := users.IsAdmin(r.Context(), userID)
			if err != nil {
				httputil.WriteError(w, r, err, "Failed to check permissions")
				return
			}
			if !admin {
				httputil.WriteJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Admin access required", Kind: models.KindForbidden})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
