package federation_test

import (
	"testing"

	"github.com/pilab-dev/googleconnector/cache"
	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/internal/federation"
	mock_federation "github.com/pilab-dev/googleconnector/internal/federation/mock"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewProvider(t *testing.T) {
	p, err := federation.NewProvider(googleConfig())
	require.NoError(t, err)
	assert.IsType(t, &federation.GoogleProvider{}, p)

	cfg := googleConfig()
	cfg.Type = "saml"
	_, err = federation.NewProvider(cfg)
	assert.ErrorIs(t, err, federation.ErrConfiguration)
}

func TestService_RegisterProvider(t *testing.T) {
	ctrl := gomock.NewController(t)

	svc := federation.NewService(oauthsession.NewBridge(cache.NewMemorySessionStore()), nil, nil)

	mockProvider := mock_federation.NewMockProvider(ctrl)
	mockProvider.EXPECT().Name().Return("mockprov").AnyTimes()
	svc.RegisterProvider(mockProvider)

	flow, err := svc.Flow("mockprov")
	require.NoError(t, err)
	assert.Equal(t, mockProvider, flow.Provider())

	_, err = svc.Flow("unknown")
	assert.ErrorIs(t, err, federation.ErrProviderNotFound)
}

func TestNewServiceFromConfigs(t *testing.T) {
	work := googleConfig()
	work.Name = "google-work"
	work.RedirectURI = ""

	svc, err := federation.NewServiceFromConfigs(
		[]domain.ProviderConfig{googleConfig(), work},
		"https://app.example.com/api/oauth2client/",
		oauthsession.NewBridge(cache.NewMemorySessionStore()),
		cache.NewMemoryCredentialStore(),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"google", "google-work"}, svc.Providers())

	flow, err := svc.Flow("google-work")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/api/oauth2client/google-work", flow.Provider().Config().RedirectURI)

	bad := googleConfig()
	bad.ClientSecret = ""
	_, err = federation.NewServiceFromConfigs([]domain.ProviderConfig{bad}, "", nil, nil, nil)
	assert.ErrorIs(t, err, federation.ErrConfiguration)
}

func TestRedirectURIForProvider(t *testing.T) {
	assert.Equal(t, "http://localhost/cb/google", federation.RedirectURIForProvider("http://localhost/cb/", "google"))
	assert.Equal(t, "http://localhost/cb/a%20b", federation.RedirectURIForProvider("http://localhost/cb", "a b"))
}
