package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/birdcdn/cdn-console/backend/internal/api"
	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

// DefaultUsername is the bootstrap admin identifier. It is allowed as the
// initial value but rejected as a new username.
const DefaultUsername = "admin"

const (
	minUsernameLength = 3
	minPasswordLength = 8
)

// Handler holds the credential-management HTTP handlers.
type Handler struct {
	accounts AccountStore
	keys     *KeyManager
	tokens   *TokenIssuer
	logger   *slog.Logger
}

func NewHandler(accounts AccountStore, keys *KeyManager, tokens *TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, keys: keys, tokens: tokens, logger: logger}
}

// Login verifies the username/password pair and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.verifyPassword(r, req.Username, req.Password)
	if err != nil {
		api.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(account.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("admin logged in", slog.String("username", account.Username))
	api.JSON(w, http.StatusOK, models.LoginResponse{AccessToken: token, User: account})
}

// ChangeUsername renames the account and returns a fresh token for the new
// name. The caller must discard the old token.
func (h *Handler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.NewUsername) < minUsernameLength {
		api.Error(w, http.StatusBadRequest, "username must be at least 3 characters")
		return
	}
	if req.NewUsername == DefaultUsername {
		api.Error(w, http.StatusBadRequest, "username is reserved")
		return
	}

	account, err := h.currentAccountWithPassword(r, req.Password)
	if err != nil {
		api.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.accounts.UpdateUsername(r.Context(), req.NewUsername); err != nil {
		h.logger.Error("failed to update username", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	account.Username = req.NewUsername

	token, err := h.tokens.Issue(req.NewUsername)
	if err != nil {
		h.logger.Error("failed to issue session token", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("admin username changed", slog.String("username", req.NewUsername))
	api.JSON(w, http.StatusOK, models.LoginResponse{AccessToken: token, User: account})
}

// ChangePassword rotates the account password. Outstanding session tokens
// stay valid until they expire.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.NewPassword) < minPasswordLength {
		api.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if _, err := h.currentAccountWithPassword(r, req.OldPassword); err != nil {
		api.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.accounts.UpdatePassword(r.Context(), string(hashed)); err != nil {
		h.logger.Error("failed to update password", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("admin password changed")
	w.WriteHeader(http.StatusOK)
}

// ListKeys returns all API keys, newest first, with secrets redacted.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]models.APIKeyView, 0, len(keys))
	for i := range keys {
		views = append(views, keyView(&keys[i], keys[i].Masked()))
	}
	api.JSON(w, http.StatusOK, models.APIKeyListResponse{Keys: views})
}

// CreateKey creates a key and returns the plaintext secret. This response is
// the only place the plaintext ever appears.
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, secret, err := h.keys.Create(r.Context(), req.Name, req.ExpiresInDays)
	if err != nil {
		if errors.Is(err, ErrEmptyKeyName) {
			api.Error(w, http.StatusBadRequest, "name is required")
			return
		}
		h.logger.Error("failed to create api key", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("api key created",
		slog.String("key_id", key.ID), slog.String("name", key.Name))
	api.JSON(w, http.StatusCreated, keyView(key, secret))
}

// ToggleKey flips the active flag of the key.
func (h *Handler) ToggleKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	key, err := h.keys.Toggle(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "api key not found")
			return
		}
		h.logger.Error("failed to toggle api key", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("api key toggled",
		slog.String("key_id", key.ID), slog.Bool("is_active", key.IsActive))
	api.JSON(w, http.StatusOK, keyView(key, key.Masked()))
}

// DeleteKey removes the key permanently.
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.keys.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.Error(w, http.StatusNotFound, "api key not found")
			return
		}
		h.logger.Error("failed to delete api key", slog.Any("error", err))
		api.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("api key deleted", slog.String("key_id", id))
	api.JSON(w, http.StatusOK, map[string]string{"message": "api key deleted"})
}

// verifyPassword loads the account and checks both username and password,
// failing with ErrInvalidCredentials on any mismatch.
func (h *Handler) verifyPassword(r *http.Request, username, password string) (*models.Account, error) {
	account, err := h.accounts.GetAccount(r.Context())
	if err != nil {
		h.logger.Error("failed to load account", slog.Any("error", err))
		return nil, ErrInvalidCredentials
	}
	if account.Username != username {
		h.logger.Warn("login failed: unknown username", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		h.logger.Warn("login failed: wrong password", slog.String("username", username))
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// currentAccountWithPassword checks the supplied password against the
// current account, regardless of username.
func (h *Handler) currentAccountWithPassword(r *http.Request, password string) (*models.Account, error) {
	account, err := h.accounts.GetAccount(r.Context())
	if err != nil {
		h.logger.Error("failed to load account", slog.Any("error", err))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		h.logger.Warn("password verification failed")
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func keyView(k *models.APIKey, keyField string) models.APIKeyView {
	return models.APIKeyView{
		ID:         k.ID,
		Name:       k.Name,
		Key:        keyField,
		IsActive:   k.IsActive,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}
