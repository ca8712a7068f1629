package api

import (
	"net/url"
	"strings"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
)

const (
	// BasePath is where the dispatch endpoint is mounted; the provider name follows it.
	BasePath = "/api/oauth2client"

	DefaultSessionCookie = "oauth2_session"
)

// IdentityResponse is returned after a successful sign-in when there is no post-login
// target to redirect to. Tokens are never exposed.
type IdentityResponse struct {
	Username  string             `json:"username"`
	Provider  string             `json:"provider"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	User      domain.NewUserData `json:"user"`
}

// NewIdentityResponse builds the response body for identity.
func NewIdentityResponse(identity *domain.AuthenticatedIdentity) IdentityResponse {
	resp := IdentityResponse{
		Username: identity.Username,
		Provider: identity.Provider,
	}
	if identity.Token != nil && !identity.Token.Expiry.IsZero() {
		exp := identity.Token.Expiry
		resp.ExpiresAt = &exp
	}
	if identity.Owner != nil {
		resp.User = identity.Owner.UserData()
	}
	return resp
}

// ProvidersResponse lists the configured providers.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// SessionKey namespaces the browser session id by provider so parallel sign-ins with
// different providers do not overwrite each other's state.
func SessionKey(provider, sessionID string) string {
	return provider + ":" + sessionID
}

// SafeRedirect returns target when it is a relative path or points at host. Anything
// else would make the endpoint an open redirector.
func SafeRedirect(target, host string) (string, bool) {
	if target == "" {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(target, "//") {
			return "", false
		}
		return u.String(), true
	}
	if (u.Scheme == "http" || u.Scheme == "https") && strings.EqualFold(u.Host, host) {
		return u.String(), true
	}
	return "", false
}
