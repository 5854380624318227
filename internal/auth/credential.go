package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

// Kind tags the two credential variants a bearer value can be.
type Kind int

const (
	KindSession Kind = iota
	KindAPIKey
)

// Credential is a classified bearer value. Classification happens once at
// ingress; downstream code dispatches on Kind and never re-sniffs prefixes.
type Credential struct {
	Kind  Kind
	Value string
}

// Classify routes a bearer value to exactly one variant: values carrying the
// API key prefix are API keys, everything else is treated as a session token.
// The function is pure and side-effect free.
func Classify(bearer string) Credential {
	if strings.HasPrefix(bearer, KeyPrefix) {
		return Credential{Kind: KindAPIKey, Value: bearer}
	}
	return Credential{Kind: KindSession, Value: bearer}
}

// AccountStore defines the persistence interface for the administrative
// account.
type AccountStore interface {
	GetAccount(ctx context.Context) (*models.Account, error)
	UpdateUsername(ctx context.Context, username string) error
	UpdatePassword(ctx context.Context, passwordHash string) error
}

// Gate is the single request-time decision point: it classifies an inbound
// bearer credential, dispatches to the matching validator and yields an
// authenticated principal or an error.
type Gate struct {
	tokens   *TokenIssuer
	keys     *KeyManager
	accounts AccountStore
	logger   *slog.Logger
}

// NewGate wires the gate from its two validators and the account store.
func NewGate(tokens *TokenIssuer, keys *KeyManager, accounts AccountStore, logger *slog.Logger) *Gate {
	return &Gate{tokens: tokens, keys: keys, accounts: accounts, logger: logger}
}

// Authenticate validates a bearer value over either path. The error never
// discloses which sub-check failed; callers surface it as a uniform 401.
func (g *Gate) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	cred := Classify(bearer)
	switch cred.Kind {
	case KindAPIKey:
		principal, err := g.keys.Validate(ctx, cred.Value)
		if err != nil {
			g.logger.Warn("api key rejected", slog.Any("error", err))
			return nil, err
		}
		return principal, nil
	default:
		username, err := g.tokens.Verify(cred.Value)
		if err != nil {
			g.logger.Warn("session token rejected", slog.Any("error", err))
			return nil, err
		}
		return &Principal{Username: username, Method: MethodSession}, nil
	}
}

// AuthenticateSession accepts only session tokens and additionally resolves
// the account by the embedded username. Tokens issued for a former username
// fail here even while cryptographically valid, which is what forces reissue
// after a username change.
func (g *Gate) AuthenticateSession(ctx context.Context, bearer string) (*Principal, error) {
	cred := Classify(bearer)
	if cred.Kind != KindSession {
		return nil, ErrInvalidToken
	}

	username, err := g.tokens.Verify(cred.Value)
	if err != nil {
		g.logger.Warn("session token rejected", slog.Any("error", err))
		return nil, err
	}

	account, err := g.accounts.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	if account.Username != username {
		g.logger.Warn("session token for stale username", slog.String("username", username))
		return nil, ErrInvalidToken
	}
	return &Principal{Username: username, Method: MethodSession}, nil
}

// IsAuthError reports whether err is a credential validation failure rather
// than an infrastructure error.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrKeyInactive) ||
		errors.Is(err, ErrKeyExpired)
}
