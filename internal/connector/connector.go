// Package connector gives background jobs access to a user's provider account using the
// credentials stored by a previous interactive sign-in.
package connector

import (
	"context"
	"net/http"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/internal/federation"
)

// Connector hands out authenticated provider clients for stored credentials.
type Connector struct {
	service *federation.Service
}

// New creates a Connector over the flows of service.
func New(service *federation.Service) *Connector {
	return &Connector{service: service}
}

// Token returns a usable token for credentialKey at providerName, refreshing it when it
// has expired. A credential that needs user interaction fails with
// federation.ErrAuthenticationFailed; the user has to sign in again.
func (c *Connector) Token(ctx context.Context, providerName, credentialKey string) (*domain.OAuthToken, error) {
	flow, err := c.service.Flow(providerName)
	if err != nil {
		return nil, err
	}
	return flow.EnsureFresh(ctx, credentialKey)
}

// Client returns an *http.Client that authenticates requests to providerName with the
// credentials stored under credentialKey.
func (c *Connector) Client(ctx context.Context, providerName, credentialKey string) (*http.Client, error) {
	flow, err := c.service.Flow(providerName)
	if err != nil {
		return nil, err
	}
	token, err := flow.EnsureFresh(ctx, credentialKey)
	if err != nil {
		return nil, err
	}
	return flow.Provider().HTTPClient(ctx, token), nil
}

// Owner fetches the current resource owner document for the stored credentials.
func (c *Connector) Owner(ctx context.Context, providerName, credentialKey string) (*domain.ResourceOwner, error) {
	flow, err := c.service.Flow(providerName)
	if err != nil {
		return nil, err
	}
	token, err := flow.EnsureFresh(ctx, credentialKey)
	if err != nil {
		return nil, err
	}
	return flow.Provider().FetchResourceOwner(ctx, token)
}
