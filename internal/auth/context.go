package auth

import "context"

// AuthMethod records which validation path authenticated a request.
type AuthMethod string

const (
	MethodSession AuthMethod = "session"
	MethodAPIKey  AuthMethod = "api_key"
)

// Principal is the authenticated identity attached to a request after the
// gate accepts its credential. Single-account system: a principal implies
// full privilege.
type Principal struct {
	Username string
	Method   AuthMethod
	APIKeyID string // set only when Method is MethodAPIKey
}

type principalKey struct{}

// WithPrincipal returns a new context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the principal, returning nil if the request
// was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
