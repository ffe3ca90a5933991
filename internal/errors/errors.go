package errors

import "errors"

// Authentication flow errors.
var (
	// ErrCallbackTimeout means no redirect reached the local listener before
	// the wait window closed.
	ErrCallbackTimeout = errors.New("timed out waiting for SSO callback")

	// ErrStateMismatch means the state parameter on the callback did not match
	// the one issued for this attempt. Always fatal, never retried.
	ErrStateMismatch = errors.New("SSO state parameter mismatch")

	// ErrProviderDenied means the user or the provider rejected the
	// authorization request at the consent page.
	ErrProviderDenied = errors.New("authorization denied by provider")

	ErrTokenExchange = errors.New("authorization code exchange failed")
)

// Credential and API errors.
var (
	// ErrUnauthenticated means no credential exists for the requested character.
	ErrUnauthenticated = errors.New("no credential for character")

	// ErrTokenRefresh means a refresh-token grant failed. The stored
	// credential is invalidated when this surfaces; a dead refresh token
	// cannot recover on its own.
	ErrTokenRefresh = errors.New("token refresh failed")

	// ErrRateLimited means the provider kept returning rate-limit responses
	// past the bounded retry budget.
	ErrRateLimited = errors.New("rate limited by provider")
)
