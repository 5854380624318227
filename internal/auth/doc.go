// Package auth implements credential and access management for the console:
// the single admin account, signed session tokens, long-lived API keys and
// the gate that classifies inbound bearer credentials.
//
// Two credential forms exist. Session tokens are HS256-signed JWTs issued on
// login; the server keeps no session state. API keys carry the fixed "cdn_"
// prefix, are stored hashed, and are meant for non-interactive callers.
// Every protected request presents one of the two as a bearer value and the
// gate routes it to exactly one validator.
package auth
