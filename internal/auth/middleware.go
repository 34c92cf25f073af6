package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"promptcache/internal/store"
	"promptcache/pkg/logging"
)

type contextKey struct{}

var userKey contextKey

// CurrentUser returns the authenticated user attached by RequireUser.
// The second return is false on unauthenticated requests.
func CurrentUser(ctx context.Context) (store.User, bool) {
	u, ok := ctx.Value(userKey).(store.User)
	return u, ok
}

// WithUser attaches a user to the context the way RequireUser does.
func WithUser(ctx context.Context, u store.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// RequireUser rejects requests without a valid bearer token and loads
// the token's user into the request context.
func RequireUser(issuer *TokenIssuer, users store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			userID, err := issuer.Parse(tokenString)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			user, err := users.UserByID(r.Context(), userID)
			if err != nil {
				// Token subjects always reference existing users unless the
				// account was removed after issuance.
				logging.L(r.Context()).Warn("token for unknown user",
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
