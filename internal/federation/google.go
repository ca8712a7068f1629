package federation

import (
	"slices"

	"github.com/pilab-dev/googleconnector/domain"
	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"
)

// Google's endpoints. They are fixed for all Google connectors; tests point them at
// local servers.
var (
	GoogleEndpoint         = googleOAuth2.Endpoint
	GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"
)

var googleDefaultScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
}

// GoogleProvider implements the Provider interface for Google.
type GoogleProvider struct {
	*BaseProvider
}

// NewGoogleProvider validates cfg and builds a Google client. Endpoint URLs cannot be
// customized for Google; setting any of them is a configuration error.
func NewGoogleProvider(cfg domain.ProviderConfig) (*GoogleProvider, error) {
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if cfg.HasEndpointOverrides() {
		return nil, configError("cannot change the URLs for Google OAuth connectors (provider %q)", cfg.Name)
	}
	if err := validateClient(cfg); err != nil {
		return nil, err
	}

	switch cfg.AccessType {
	case "":
		cfg.AccessType = domain.AccessTypeOffline
	case domain.AccessTypeOnline, domain.AccessTypeOffline:
	default:
		return nil, configError("unsupported access_type %q for provider %q", cfg.AccessType, cfg.Name)
	}

	cfg.Type = domain.ProviderTypeGoogle
	cfg.Scopes = withGoogleScopes(cfg.Scopes)

	params := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("access_type", string(cfg.AccessType)),
	}
	if cfg.HostedDomain != "" {
		params = append(params, oauth2.SetAuthURLParam("hd", cfg.HostedDomain))
	}

	return &GoogleProvider{
		BaseProvider: &BaseProvider{
			config:           cfg,
			endpoint:         GoogleEndpoint,
			resourceOwnerURL: GoogleUserInfoEndpoint,
			authParams:       params,
		},
	}, nil
}

// withGoogleScopes returns a copy of scopes that includes the profile scopes needed to
// resolve the resource owner.
func withGoogleScopes(scopes []string) []string {
	out := slices.Clone(scopes)

	hasOpenID := slices.Contains(out, "openid")
	hasProfile := slices.Contains(out, "profile") || slices.Contains(out, googleDefaultScopes[1])
	hasEmail := slices.Contains(out, "email") || slices.Contains(out, googleDefaultScopes[2])

	if !hasOpenID {
		out = append(out, googleDefaultScopes[0])
	}
	if !hasProfile {
		out = append(out, googleDefaultScopes[1])
	}
	if !hasEmail {
		out = append(out, googleDefaultScopes[2])
	}
	return out
}

// Ensure GoogleProvider implements Provider.
var _ Provider = (*GoogleProvider)(nil)
