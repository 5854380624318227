package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

// KeyPrefix is the fixed literal prefix carried by every API key secret.
// The auth gate routes bearer values by this prefix, so it may never appear
// at the start of a session token.
const KeyPrefix = "cdn_"

const (
	keySecretBytes  = 32
	keyDisplayRunes = 12
	touchTimeout    = 5 * time.Second
)

// ErrEmptyKeyName is returned by Create when no label is supplied.
var ErrEmptyKeyName = errors.New("api key name is required")

// KeyStore defines the persistence interface for API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	ToggleAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
}

// KeyManager owns the lifecycle of API keys: creation with reveal-once
// semantics, listing, toggling, deletion and request-time validation.
type KeyManager struct {
	keys     KeyStore
	accounts AccountStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewKeyManager creates a key manager backed by the given stores.
func NewKeyManager(keys KeyStore, accounts AccountStore, logger *slog.Logger) *KeyManager {
	return &KeyManager{keys: keys, accounts: accounts, logger: logger, now: time.Now}
}

// Create generates a new key and returns the record together with the
// plaintext secret. The plaintext is never available again: only its SHA-256
// digest and a short display prefix are persisted.
func (m *KeyManager) Create(ctx context.Context, name string, expiresInDays *int) (*models.APIKey, string, error) {
	if name == "" {
		return nil, "", ErrEmptyKeyName
	}

	secret, err := generateKeySecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate key secret: %w", err)
	}

	key := &models.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   hashKeySecret(secret),
		Prefix:    secret[:keyDisplayRunes],
		IsActive:  true,
		CreatedAt: m.now(),
	}
	if expiresInDays != nil {
		exp := m.now().AddDate(0, 0, *expiresInDays)
		key.ExpiresAt = &exp
	}

	if err := m.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("store api key: %w", err)
	}
	return key, secret, nil
}

// List returns all keys, most recently created first.
func (m *KeyManager) List(ctx context.Context) ([]models.APIKey, error) {
	return m.keys.ListAPIKeys(ctx)
}

// Toggle flips the active flag of the key and returns the updated record.
// The flip happens in a single atomic statement so concurrent toggles cannot
// compute from stale state.
func (m *KeyManager) Toggle(ctx context.Context, id string) (*models.APIKey, error) {
	return m.keys.ToggleAPIKey(ctx, id)
}

// Delete removes the key permanently and immediately.
func (m *KeyManager) Delete(ctx context.Context, id string) error {
	return m.keys.DeleteAPIKey(ctx, id)
}

// Validate checks a presented secret and returns the account principal on
// success. A successful use updates last_used_at without blocking the caller.
func (m *KeyManager) Validate(ctx context.Context, presented string) (*Principal, error) {
	digest := hashKeySecret(presented)

	key, err := m.keys.GetAPIKeyByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	// Digest comparison is constant time even though the lookup already
	// matched on it.
	if !hmac.Equal([]byte(key.KeyHash), []byte(digest)) {
		return nil, ErrInvalidKey
	}
	if !key.IsActive {
		return nil, ErrKeyInactive
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(m.now()) {
		return nil, ErrKeyExpired
	}

	account, err := m.accounts.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	usedAt := m.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := m.keys.TouchAPIKey(ctx, key.ID, usedAt); err != nil {
			m.logger.Warn("failed to update api key last_used_at",
				slog.String("key_id", key.ID), slog.Any("error", err))
		}
	}()

	return &Principal{
		Username: account.Username,
		Method:   MethodAPIKey,
		APIKeyID: key.ID,
	}, nil
}

func generateKeySecret() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

func hashKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
