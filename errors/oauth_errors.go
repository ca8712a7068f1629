package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/pilab-dev/googleconnector/internal/credentials"
	"github.com/pilab-dev/googleconnector/internal/federation"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// OAuth2 error codes returned by the connector endpoints
const (
	AccessDenied   = "access_denied"
	InvalidState   = "invalid_state"
	NotFound       = "provider_not_found"
	ServerError    = "server_error"
)

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// FromFlowError maps an authentication flow error to an HTTP status and body. The
// descriptions are fixed texts; provider responses and internal failures are left to
// the logs.
func FromFlowError(err error) (int, *OAuth2Error) {
	switch {
	case stderrors.Is(err, federation.ErrInvalidState):
		return http.StatusUnauthorized, &OAuth2Error{Code: InvalidState, Description: "The sign-in session is invalid or has expired. Please try again."}
	case stderrors.Is(err, federation.ErrAuthenticationFailed):
		return http.StatusUnauthorized, NewAccessDenied("Sign-in with the identity provider did not succeed. Please try again.")
	case stderrors.Is(err, federation.ErrProviderNotFound):
		return http.StatusNotFound, &OAuth2Error{Code: NotFound, Description: err.Error()}
	case stderrors.Is(err, federation.ErrConfiguration), stderrors.Is(err, credentials.ErrMalformedCredentials):
		return http.StatusInternalServerError, NewServerError("The authentication connector is misconfigured")
	default:
		return http.StatusInternalServerError, NewServerError("Internal server error")
	}
}
