package federation

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed covers provider-reported errors, failed exchanges and
	// attempts that produced no token. Hosts map it to an access-denied response.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidState signals an anti-forgery state mismatch (possible CSRF or replay).
	// It is always reported together with ErrAuthenticationFailed.
	ErrInvalidState = errors.New("invalid OAuth2 state")

	// ErrConfiguration reports invalid static provider configuration.
	ErrConfiguration = errors.New("invalid provider configuration")

	ErrProviderNotFound = errors.New("provider not found")
	ErrTokenExpired     = errors.New("OAuth token expired: please sign in again")
	ErrNoToken          = errors.New("no token: please sign in first")
	ErrUsernameMissing  = errors.New("username field missing from resource owner")
	ErrHostedDomain     = errors.New("resource owner does not belong to the hosted domain")
)

// ProviderError is a transport or provider-side failure while talking to one of the
// provider's endpoints.
type ProviderError struct {
	Provider string
	Op       string // authorize, exchange, refresh, resource_owner
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func authFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
