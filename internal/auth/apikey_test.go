package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdcdn/cdn-console/backend/internal/models"
	"github.com/birdcdn/cdn-console/backend/internal/store"
)

type fakeKeyStore struct {
	mu   sync.Mutex
	keys map[string]*models.APIKey
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: make(map[string]*models.APIKey)}
}

func (s *fakeKeyStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *fakeKeyStore) ListAPIKeys(_ context.Context) ([]models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, *k)
	}
	return out, nil
}

func (s *fakeKeyStore) GetAPIKeyByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyHash == keyHash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeKeyStore) ToggleAPIKey(_ context.Context, id string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	k.IsActive = !k.IsActive
	cp := *k
	return &cp, nil
}

func (s *fakeKeyStore) DeleteAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.keys, id)
	return nil
}

func (s *fakeKeyStore) TouchAPIKey(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		k.LastUsedAt = &usedAt
	}
	return nil
}

type fakeAccountStore struct {
	account models.Account
}

func (s *fakeAccountStore) GetAccount(_ context.Context) (*models.Account, error) {
	cp := s.account
	return &cp, nil
}

func (s *fakeAccountStore) UpdateUsername(_ context.Context, username string) error {
	s.account.Username = username
	return nil
}

func (s *fakeAccountStore) UpdatePassword(_ context.Context, passwordHash string) error {
	s.account.PasswordHash = passwordHash
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKeyManager() (*KeyManager, *fakeKeyStore) {
	keys := newFakeKeyStore()
	accounts := &fakeAccountStore{account: models.Account{Username: "admin"}}
	return NewKeyManager(keys, accounts, testLogger()), keys
}

func TestKeyCreateAndValidate(t *testing.T) {
	m, _ := newTestKeyManager()
	ctx := context.Background()

	key, secret, err := m.Create(ctx, "deploy-bot", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, KeyPrefix))
	assert.Len(t, secret, len(KeyPrefix)+2*keySecretBytes)
	assert.Equal(t, secret[:keyDisplayRunes], key.Prefix)
	assert.True(t, key.IsActive)
	assert.Nil(t, key.ExpiresAt)

	// The record never holds the plaintext.
	assert.NotContains(t, key.KeyHash, secret)
	assert.Equal(t, key.Prefix+"…", key.Masked())

	principal, err := m.Validate(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "admin", principal.Username)
	assert.Equal(t, MethodAPIKey, principal.Method)
	assert.Equal(t, key.ID, principal.APIKeyID)
}

func TestKeyValidateUnknownSecret(t *testing.T) {
	m, _ := newTestKeyManager()

	_, err := m.Validate(context.Background(), KeyPrefix+"deadbeef")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyToggle(t *testing.T) {
	m, _ := newTestKeyManager()
	ctx := context.Background()

	key, secret, err := m.Create(ctx, "deploy-bot", nil)
	require.NoError(t, err)

	toggled, err := m.Toggle(ctx, key.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	_, err = m.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrKeyInactive)

	toggled, err = m.Toggle(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	_, err = m.Validate(ctx, secret)
	assert.NoError(t, err)
}

func TestKeyDelete(t *testing.T) {
	m, _ := newTestKeyManager()
	ctx := context.Background()

	key, secret, err := m.Create(ctx, "deploy-bot", nil)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, key.ID))

	_, err = m.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = m.Delete(ctx, key.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKeyExpiry(t *testing.T) {
	m, _ := newTestKeyManager()
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return created }

	days := 1
	key, secret, err := m.Create(ctx, "ci-bot", &days)
	require.NoError(t, err)
	require.NotNil(t, key.ExpiresAt)
	assert.Equal(t, created.AddDate(0, 0, 1), *key.ExpiresAt)

	// Still valid one second before expiry and at the expiry instant itself.
	m.now = func() time.Time { return key.ExpiresAt.Add(-time.Second) }
	_, err = m.Validate(ctx, secret)
	assert.NoError(t, err)

	m.now = func() time.Time { return *key.ExpiresAt }
	_, err = m.Validate(ctx, secret)
	assert.NoError(t, err)

	m.now = func() time.Time { return key.ExpiresAt.Add(time.Second) }
	_, err = m.Validate(ctx, secret)
	assert.ErrorIs(t, err, ErrKeyExpired)
}

func TestKeyCreateRequiresName(t *testing.T) {
	m, _ := newTestKeyManager()

	_, _, err := m.Create(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyKeyName)
}

func TestKeySecretsAreUnique(t *testing.T) {
	m, _ := newTestKeyManager()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		_, secret, err := m.Create(ctx, "bot", nil)
		require.NoError(t, err)
		assert.False(t, seen[secret])
		seen[secret] = true
	}
}
