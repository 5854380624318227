package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/auth"
)

// Authenticator is the subset of the auth gate the middleware needs.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*auth.Principal, error)
	AuthenticateSession(ctx context.Context, bearer string) (*auth.Principal, error)
}

// extractBearer returns the bearer value from the Authorization header, or
// "" when none is present.
func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// RequireAuth accepts either a session token or an API key and injects the
// authenticated principal into the request context. All failures produce the
// same 401 body regardless of which validation path rejected the credential.
func RequireAuth(gate Authenticator) func(http.Handler) http.Handler {
	return middleware(gate.Authenticate)
}

// RequireSession accepts only session tokens, for account-mutating and
// admin routes.
func RequireSession(gate Authenticator) func(http.Handler) http.Handler {
	return middleware(gate.AuthenticateSession)
}

func middleware(authenticate func(context.Context, string) (*auth.Principal, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := extractBearer(r)
			if bearer == "" {
				api.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			principal, err := authenticate(r.Context(), bearer)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}
