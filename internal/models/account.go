package models

import "time"

// Account is the single administrative identity. Exactly one row exists.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialize
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey is a long-lived credential for external integrations.
// Only a SHA-256 digest of the secret is persisted; Prefix keeps a short
// display fragment so the console can label keys after creation.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	Prefix     string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Masked returns the redacted form of the key secret shown in listings.
func (k *APIKey) Masked() string {
	return k.Prefix + "…"
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token issued on login or username change.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	User        *Account `json:"user"`
}

// ChangeUsernameRequest is the JSON body for PATCH /api/auth/change-username.
type ChangeUsernameRequest struct {
	NewUsername string `json:"new_username"`
	Password    string `json:"password"`
}

// ChangePasswordRequest is the JSON body for PATCH /api/auth/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// CreateAPIKeyRequest is the JSON body for POST /api/auth/api-keys.
type CreateAPIKeyRequest struct {
	Name          string `json:"name"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
}

// APIKeyView is the wire form of an API key. Key holds the plaintext
// secret exactly once in the create response and the masked form everywhere
// else.
type APIKeyView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyListResponse is the response for GET /api/auth/api-keys.
type APIKeyListResponse struct {
	Keys []APIKeyView `json:"keys"`
}
