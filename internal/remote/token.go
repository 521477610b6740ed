package remote

import "context"

// TokenResult is a bearer token. It carries no expiry metadata; the
// HTTPClient asks the TokenProvider for a token on every request.
type TokenResult struct {
	AccessToken string
}

// TokenProvider supplies and invalidates bearer tokens, used by HTTPClient
// and SessionManager. nil is a valid *HTTPClient field: see
// NewDevHTTPClient.
type TokenProvider interface {
	GetToken(ctx context.Context, audience, scope string, forceRefresh bool) (TokenResult, error)
	InvalidateToken(audience, scope string)
}
