package auth

import "errors"

// Credential validation errors. Handlers map all of these to a generic 401
// so callers cannot distinguish which check failed; the specific reason is
// only logged.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidKey         = errors.New("invalid api key")
	ErrKeyInactive        = errors.New("api key inactive")
	ErrKeyExpired         = errors.New("api key expired")
)
