package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

func newTestHandler(t *testing.T) (*Handler, *fakeAccountStore, *TokenIssuer) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	accounts := &fakeAccountStore{account: models.Account{
		Username:     "admin",
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}}
	tokens := NewTokenIssuer([]byte("test-secret"), time.Hour)
	keys := NewKeyManager(newFakeKeyStore(), accounts, testLogger())
	return NewHandler(accounts, keys, tokens, testLogger()), accounts, tokens
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	h, _, tokens := newTestHandler(t)

	rec := doJSON(t, h.Login, http.MethodPost, "/api/auth/login",
		models.LoginRequest{Username: "admin", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "admin", resp.User.Username)

	username, err := tokens.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
}

func TestLoginRejected(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name string
		req  models.LoginRequest
	}{
		{"wrong password", models.LoginRequest{Username: "admin", Password: "nope"}},
		{"wrong username", models.LoginRequest{Username: "root", Password: "password123"}},
		{"empty", models.LoginRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.Login, http.MethodPost, "/api/auth/login", tt.req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var resp struct {
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "invalid credentials", resp.Message)
		})
	}
}

func TestChangeUsername(t *testing.T) {
	h, accounts, tokens := newTestHandler(t)

	rec := doJSON(t, h.ChangeUsername, http.MethodPost, "/api/auth/change-username",
		models.ChangeUsernameRequest{NewUsername: "operator", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "operator", resp.User.Username)
	assert.Equal(t, "operator", accounts.account.Username)

	// The response carries a token for the new name.
	username, err := tokens.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", username)
}

func TestChangeUsernameRejected(t *testing.T) {
	h, accounts, _ := newTestHandler(t)

	tests := []struct {
		name   string
		req    models.ChangeUsernameRequest
		status int
	}{
		{"too short", models.ChangeUsernameRequest{NewUsername: "ab", Password: "password123"}, http.StatusBadRequest},
		{"reserved", models.ChangeUsernameRequest{NewUsername: "admin", Password: "password123"}, http.StatusBadRequest},
		{"wrong password", models.ChangeUsernameRequest{NewUsername: "operator", Password: "nope"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.ChangeUsername, http.MethodPost, "/api/auth/change-username", tt.req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "admin", accounts.account.Username)
}

func TestChangePassword(t *testing.T) {
	h, accounts, _ := newTestHandler(t)

	rec := doJSON(t, h.ChangePassword, http.MethodPost, "/api/auth/change-password",
		models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "hunter2hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)

	err := bcrypt.CompareHashAndPassword([]byte(accounts.account.PasswordHash), []byte("hunter2hunter2"))
	assert.NoError(t, err)
}

func TestChangePasswordRejected(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name   string
		req    models.ChangePasswordRequest
		status int
	}{
		{"too short", models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "short"}, http.StatusBadRequest},
		{"wrong old password", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "hunter2hunter2"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.ChangePassword, http.MethodPost, "/api/auth/change-password", tt.req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCreateKeyRevealsSecretOnce(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.CreateKey, http.MethodPost, "/api/auth/api-keys",
		models.CreateAPIKeyRequest{Name: "deploy-bot"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.APIKeyView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "deploy-bot", created.Name)
	assert.True(t, created.IsActive)
	require.Greater(t, len(created.Key), keyDisplayRunes)

	// Listing afterwards only shows the masked form.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/api-keys", nil)
	listRec := httptest.NewRecorder()
	h.ListKeys(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	var list models.APIKeyListResponse
	require.NoError(t, json.NewDecoder(listRec.Body).Decode(&list))
	require.Len(t, list.Keys, 1)
	assert.Equal(t, created.Key[:keyDisplayRunes]+"…", list.Keys[0].Key)
}

func TestCreateKeyRequiresName(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.CreateKey, http.MethodPost, "/api/auth/api-keys",
		models.CreateAPIKeyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleAndDeleteKey(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.CreateKey, http.MethodPost, "/api/auth/api-keys",
		models.CreateAPIKeyRequest{Name: "deploy-bot"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.APIKeyView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	r := chi.NewRouter()
	r.Put("/api/auth/api-keys/{id}/toggle", h.ToggleKey)
	r.Delete("/api/auth/api-keys/{id}", h.DeleteKey)

	toggleRec := httptest.NewRecorder()
	r.ServeHTTP(toggleRec, httptest.NewRequest(http.MethodPut, "/api/auth/api-keys/"+created.ID+"/toggle", nil))
	require.Equal(t, http.StatusOK, toggleRec.Code)

	var toggled models.APIKeyView
	require.NoError(t, json.NewDecoder(toggleRec.Body).Decode(&toggled))
	assert.False(t, toggled.IsActive)

	deleteRec := httptest.NewRecorder()
	r.ServeHTTP(deleteRec, httptest.NewRequest(http.MethodDelete, "/api/auth/api-keys/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, deleteRec.Code)

	missingRec := httptest.NewRecorder()
	r.ServeHTTP(missingRec, httptest.NewRequest(http.MethodDelete, "/api/auth/api-keys/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestToggleKeyNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := chi.NewRouter()
	r.Put("/api/auth/api-keys/{id}/toggle", h.ToggleKey)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/auth/api-keys/nope/toggle", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
