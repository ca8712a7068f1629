package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/pilab-dev/googleconnector/domain"
	"golang.org/x/oauth2"
)

// AuthURLOptions tunes a single authorization URL.
type AuthURLOptions struct {
	// Prompt is passed as the prompt parameter, e.g. "consent".
	Prompt string
}

// Provider is the client side of an identity provider's authorize, token and
// resource-owner endpoints.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE Provider
type Provider interface {
	// Name returns the unique identifier for the provider (e.g., "google").
	Name() string

	// Config returns the configuration the provider was built from.
	Config() domain.ProviderConfig

	// AuthCodeURL builds the authorization URL together with the fresh state value
	// embedded in it. A state is never reused between calls.
	AuthCodeURL(opts AuthURLOptions) (authURL, state string, err error)

	// ExchangeCode redeems an authorization code (authorization_code grant).
	ExchangeCode(ctx context.Context, code string) (*domain.OAuthToken, error)

	// RefreshToken obtains a new access token (refresh_token grant). The returned token
	// keeps the given refresh value when the provider does not rotate it.
	RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthToken, error)

	// FetchResourceOwner resolves the identity attributes of the token's owner.
	FetchResourceOwner(ctx context.Context, token *domain.OAuthToken) (*domain.ResourceOwner, error)

	// HTTPClient returns a client that authenticates requests with token.
	HTTPClient(ctx context.Context, token *domain.OAuthToken) *http.Client
}

// BaseProvider implements Provider for any standard OAuth2 provider whose endpoints are
// configured explicitly. Specific providers embed it and fix the endpoints.
type BaseProvider struct {
	config           domain.ProviderConfig
	endpoint         oauth2.Endpoint
	resourceOwnerURL string
	authParams       []oauth2.AuthCodeOption
}

// NewBaseProvider builds a generic provider. All three endpoint URLs are required.
func NewBaseProvider(cfg domain.ProviderConfig) (*BaseProvider, error) {
	if err := validateClient(cfg); err != nil {
		return nil, err
	}
	if cfg.AuthorizeURL == "" || cfg.AccessTokenURL == "" || cfg.ResourceOwnerURL == "" {
		return nil, configError("provider %q needs url_authorize, url_access_token and url_resource_owner_details", cfg.Name)
	}
	if cfg.Type == "" {
		cfg.Type = domain.ProviderTypeOAuth2
	}
	cfg.Scopes = slices.Clone(cfg.Scopes)

	return &BaseProvider{
		config: cfg,
		endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizeURL,
			TokenURL:  cfg.AccessTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		resourceOwnerURL: cfg.ResourceOwnerURL,
	}, nil
}

func validateClient(cfg domain.ProviderConfig) error {
	if cfg.Name == "" {
		return configError("provider name is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return configError("provider %q is missing client_id or client_secret", cfg.Name)
	}
	if cfg.RedirectURI == "" {
		return configError("provider %q is missing redirect_uri", cfg.Name)
	}
	return nil
}

func (b *BaseProvider) Name() string { return b.config.Name }

// Config returns a copy of the provider configuration.
func (b *BaseProvider) Config() domain.ProviderConfig {
	cfg := b.config
	cfg.Scopes = slices.Clone(b.config.Scopes)
	return cfg
}

func (b *BaseProvider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.config.ClientID,
		ClientSecret: b.config.ClientSecret,
		RedirectURL:  b.config.RedirectURI,
		Scopes:       b.config.Scopes,
		Endpoint:     b.endpoint,
	}
}

func (b *BaseProvider) AuthCodeURL(opts AuthURLOptions) (string, string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}

	params := slices.Clone(b.authParams)
	if opts.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", opts.Prompt))
	}

	return b.oauth2Config().AuthCodeURL(state, params...), state, nil
}

func (b *BaseProvider) ExchangeCode(ctx context.Context, code string) (*domain.OAuthToken, error) {
	tok, err := b.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, b.providerError("exchange", err)
	}
	return tokenFromOAuth2(tok), nil
}

func (b *BaseProvider) RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthToken, error) {
	// An empty access token forces the token source to use the refresh grant.
	src := b.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, b.providerError("refresh", err)
	}
	return tokenFromOAuth2(tok).WithFallbackRefresh(refreshToken), nil
}

func (b *BaseProvider) FetchResourceOwner(ctx context.Context, token *domain.OAuthToken) (*domain.ResourceOwner, error) {
	client := b.HTTPClient(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.resourceOwnerURL, nil)
	if err != nil {
		return nil, b.providerError("resource_owner", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, b.providerError("resource_owner", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, b.providerError("resource_owner", fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, b.providerError("resource_owner", fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)))
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, b.providerError("resource_owner", fmt.Errorf("unmarshal resource owner: %w", err))
	}

	return ownerFromClaims(raw), nil
}

func (b *BaseProvider) HTTPClient(ctx context.Context, token *domain.OAuthToken) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tokenToOAuth2(token)))
}

func (b *BaseProvider) providerError(op string, err error) error {
	return &ProviderError{Provider: b.config.Name, Op: op, Err: err}
}

// ownerFromClaims maps OpenID Connect standard claims. Providers without an "sub"
// claim usually expose the subject as "id".
func ownerFromClaims(raw map[string]any) *domain.ResourceOwner {
	str := func(key string) string {
		switch v := raw[key].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
		return ""
	}

	id := str("sub")
	if id == "" {
		id = str("id")
	}

	return &domain.ResourceOwner{
		ID:           id,
		Email:        str("email"),
		FirstName:    str("given_name"),
		LastName:     str("family_name"),
		Name:         str("name"),
		Locale:       str("locale"),
		HostedDomain: str("hd"),
		PictureURL:   str("picture"),
		Raw:          raw,
	}
}

func tokenFromOAuth2(tok *oauth2.Token) *domain.OAuthToken {
	out := &domain.OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out
}

func tokenToOAuth2(tok *domain.OAuthToken) *oauth2.Token {
	if tok == nil {
		return &oauth2.Token{}
	}
	return &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// Ensure BaseProvider implements Provider.
var _ Provider = (*BaseProvider)(nil)
