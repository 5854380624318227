package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdcdn/cdn-console/backend/internal/auth"
)

type stubGate struct {
	principal *auth.Principal
	err       error
	sessionOK bool
}

func (g *stubGate) Authenticate(_ context.Context, _ string) (*auth.Principal, error) {
	return g.principal, g.err
}

func (g *stubGate) AuthenticateSession(_ context.Context, _ string) (*auth.Principal, error) {
	if !g.sessionOK {
		return nil, auth.ErrInvalidToken
	}
	return g.principal, g.err
}

func TestRequireAuthInjectsPrincipal(t *testing.T) {
	gate := &stubGate{principal: &auth.Principal{Username: "admin", Method: auth.MethodSession}}

	var got *auth.Principal
	handler := RequireAuth(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "admin", got.Username)
}

func TestRequireAuthMissingHeader(t *testing.T) {
	gate := &stubGate{principal: &auth.Principal{Username: "admin"}}
	handler := RequireAuth(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"bare token", "some-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAuthRejected(t *testing.T) {
	gate := &stubGate{err: auth.ErrInvalidKey}
	handler := RequireAuth(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer cdn_bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","message":"authentication required"}`, rec.Body.String())
}

func TestRequireSessionUsesSessionPath(t *testing.T) {
	gate := &stubGate{principal: &auth.Principal{Username: "admin", Method: auth.MethodSession}}
	handler := RequireSession(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/change-password", nil)
	req.Header.Set("Authorization", "bearer some-token") // scheme is case insensitive
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	gate.sessionOK = true
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
