package domain

// ProviderType selects the provider client implementation.
type ProviderType string

const (
	ProviderTypeGoogle ProviderType = "google"
	ProviderTypeOAuth2 ProviderType = "oauth2" // Generic provider with configured endpoints
)

// AccessType controls whether the provider issues a refresh token.
type AccessType string

const (
	AccessTypeOnline  AccessType = "online"
	AccessTypeOffline AccessType = "offline"
)

// ProviderConfig is the static configuration of one identity provider. It is immutable
// once a provider client has been built from it.
type ProviderConfig struct {
	Name          string       `json:"name"`
	Type          ProviderType `json:"type"`
	ClientID      string       `json:"client_id"`
	ClientSecret  string       `json:"-"`
	RedirectURI   string       `json:"redirect_uri"`
	Scopes        []string     `json:"scopes,omitempty"`
	AccessType    AccessType   `json:"access_type,omitempty"`
	HostedDomain  string       `json:"hosted_domain,omitempty"`
	UsernameField string       `json:"username_field,omitempty"`

	// Endpoint URLs. Only generic OAuth2 providers accept these.
	AuthorizeURL     string `json:"url_authorize,omitempty"`
	AccessTokenURL   string `json:"url_access_token,omitempty"`
	ResourceOwnerURL string `json:"url_resource_owner_details,omitempty"`
}

// HasEndpointOverrides reports whether any endpoint URL was configured.
func (c *ProviderConfig) HasEndpointOverrides() bool {
	return c.AuthorizeURL != "" || c.AccessTokenURL != "" || c.ResourceOwnerURL != ""
}
