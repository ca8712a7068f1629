package federation_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/pilab-dev/googleconnector/cache"
	"github.com/pilab-dev/googleconnector/domain"
	mock_domain "github.com/pilab-dev/googleconnector/domain/mock"
	"github.com/pilab-dev/googleconnector/internal/credentials"
	"github.com/pilab-dev/googleconnector/internal/federation"
	mock_federation "github.com/pilab-dev/googleconnector/internal/federation/mock"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var flowNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type flowFixture struct {
	provider *mock_federation.MockProvider
	sessions *cache.MemorySessionStore
	creds    *cache.MemoryCredentialStore
	flow     *federation.Flow
}

func newFlowFixture(t *testing.T, cfg domain.ProviderConfig) *flowFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "client-id"
	}

	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return(cfg.Name).AnyTimes()
	provider.EXPECT().Config().Return(cfg).AnyTimes()

	sessions := cache.NewMemorySessionStore()
	t.Cleanup(func() { _ = sessions.Close() })
	creds := cache.NewMemoryCredentialStore()

	flow := federation.NewFlow(provider, oauthsession.NewBridge(sessions),
		federation.WithCredentialStore(creds),
		federation.WithClock(func() time.Time { return flowNow }),
	)

	return &flowFixture{provider: provider, sessions: sessions, creds: creds, flow: flow}
}

func request(query url.Values, referer string) *domain.RequestToken {
	header := http.Header{}
	if referer != "" {
		header.Set(domain.HeaderReferer, referer)
	}
	return &domain.RequestToken{Query: query, Header: header}
}

func (f *flowFixture) storeToken(t *testing.T, key string, tok *domain.OAuthToken) {
	t.Helper()
	record, err := credentials.Serialize(&domain.AuthenticatedIdentity{
		Username: "alice@example.com",
		Provider: "google",
		Token:    tok,
	}, "client-id", "")
	require.NoError(t, err)
	record.Key = key
	require.NoError(t, f.creds.SaveCredential(context.Background(), record))
}

func (f *flowFixture) storedToken(t *testing.T, key string) *domain.OAuthToken {
	t.Helper()
	record, err := f.creds.GetCredential(context.Background(), key)
	require.NoError(t, err)
	tok, err := credentials.Deserialize(record)
	require.NoError(t, err)
	return tok
}

var alice = &domain.ResourceOwner{
	ID:           "1234",
	Email:        "alice@example.com",
	FirstName:    "Alice",
	LastName:     "Liddell",
	HostedDomain: "example.com",
	Raw:          map[string]any{"sub": "1234", "email": "alice@example.com", "nickname": "ali"},
}

func TestFlow_RedirectsWithoutCode(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.provider.EXPECT().AuthCodeURL(federation.AuthURLOptions{}).
		Return("https://accounts.example.com/auth?state=s1", "s1", nil)

	out, err := f.flow.Authenticate(ctx, federation.Attempt{
		SessionKey: "sess-1",
		Request:    request(nil, "https://app.example.com/dashboard"),
	})
	require.NoError(t, err)
	require.NotNil(t, out.Redirect)
	assert.Nil(t, out.Identity)
	assert.Equal(t, "https://accounts.example.com/auth?state=s1", out.Redirect.URL)
	assert.Equal(t, "s1", out.Redirect.State)

	// The session survives the redirect and remembers the state and the target.
	sess, err := f.sessions.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.State)
	assert.Equal(t, "https://app.example.com/dashboard", sess.RedirectURL)
}

func TestFlow_FullRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.provider.EXPECT().AuthCodeURL(gomock.Any()).Return("https://accounts.example.com/auth", "s1", nil)
	out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", Request: request(nil, "https://app.example.com/back")})
	require.NoError(t, err)
	require.NotNil(t, out.Redirect)

	token := &domain.OAuthToken{AccessToken: "at-1", RefreshToken: "rt-1", Expiry: flowNow.Add(time.Hour)}
	f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1").Return(token, nil)
	f.provider.EXPECT().FetchResourceOwner(gomock.Any(), token).Return(alice, nil)

	out, err = f.flow.Authenticate(ctx, federation.Attempt{
		SessionKey:    "sess-1",
		CredentialKey: "alice",
		Request:       request(url.Values{"code": {"code-1"}, "state": {"s1"}}, ""),
		FacadeContext: "web",
	})
	require.NoError(t, err)
	assert.Nil(t, out.Redirect)
	require.NotNil(t, out.Identity)
	assert.Equal(t, "alice@example.com", out.Identity.Username)
	assert.Equal(t, "google", out.Identity.Provider)
	assert.Equal(t, token, out.Identity.Token)
	assert.Equal(t, "web", out.Identity.FacadeContext)
	assert.Equal(t, "https://app.example.com/back", out.RedirectURL)

	_, err = f.sessions.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	stored := f.storedToken(t, "alice")
	assert.Equal(t, "at-1", stored.AccessToken)
	assert.Equal(t, "rt-1", stored.RefreshToken)
}

func TestFlow_StateMismatch(t *testing.T) {
	tests := []struct {
		name  string
		state string
		start bool
	}{
		{name: "different state", state: "forged", start: true},
		{name: "empty state", state: "", start: true},
		{name: "no pending session", state: "s1", start: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFlowFixture(t, domain.ProviderConfig{})

			if tt.start {
				f.provider.EXPECT().AuthCodeURL(gomock.Any()).Return("https://accounts.example.com/auth", "s1", nil)
				_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", Request: request(nil, "")})
				require.NoError(t, err)
			}

			// ExchangeCode is not expected: the mock fails the test if it is called.
			out, err := f.flow.Authenticate(ctx, federation.Attempt{
				SessionKey: "sess-1",
				Request:    request(url.Values{"code": {"code-1"}, "state": {tt.state}}, ""),
			})
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
			assert.ErrorIs(t, err, federation.ErrInvalidState)
			assert.NotContains(t, err.Error(), "s1")

			_, err = f.sessions.GetSession(ctx, "sess-1")
			assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		})
	}
}

func TestFlow_ProviderErrorParameter(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.provider.EXPECT().AuthCodeURL(gomock.Any()).Return("https://accounts.example.com/auth", "s1", nil)
	_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", Request: request(nil, "")})
	require.NoError(t, err)

	_, err = f.flow.Authenticate(ctx, federation.Attempt{
		SessionKey: "sess-1",
		Request: request(url.Values{
			"error":             {"access_denied"},
			"error_description": {"<b>user said no</b>"},
			"code":              {"code-1"},
			"state":             {"s1"},
		}, ""),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
	assert.NotErrorIs(t, err, federation.ErrInvalidState)
	assert.Contains(t, err.Error(), "OAuth2 error: access_denied")
	assert.Contains(t, err.Error(), "&lt;b&gt;user said no&lt;/b&gt;")

	var perr *federation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "google", perr.Provider)

	_, err = f.sessions.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFlow_ExchangeFailure(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.provider.EXPECT().AuthCodeURL(gomock.Any()).Return("https://accounts.example.com/auth", "s1", nil)
	_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", Request: request(nil, "")})
	require.NoError(t, err)

	exchangeErr := &federation.ProviderError{Provider: "google", Op: "exchange", Err: errors.New("invalid_grant")}
	f.provider.EXPECT().ExchangeCode(gomock.Any(), "bad-code").Return(nil, exchangeErr)

	_, err = f.flow.Authenticate(ctx, federation.Attempt{
		SessionKey: "sess-1",
		Request:    request(url.Values{"code": {"bad-code"}, "state": {"s1"}}, ""),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
	assert.ErrorIs(t, err, exchangeErr)

	_, err = f.sessions.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFlow_StopsSessionExactlyOnce(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	provider := mock_federation.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("google").AnyTimes()
	provider.EXPECT().Config().Return(domain.ProviderConfig{Name: "google"}).AnyTimes()

	store := mock_domain.NewMockSessionStore(ctrl)
	flow := federation.NewFlow(provider, oauthsession.NewBridge(store))

	t.Run("redirect keeps the session", func(t *testing.T) {
		provider.EXPECT().AuthCodeURL(gomock.Any()).Return("https://accounts.example.com/auth", "s1", nil)
		store.EXPECT().SaveSession(gomock.Any(), gomock.Any()).Return(nil)
		store.EXPECT().DeleteSession(gomock.Any(), gomock.Any()).Times(0)

		out, err := flow.Authenticate(ctx, federation.Attempt{SessionKey: "k", Request: request(nil, "")})
		require.NoError(t, err)
		require.NotNil(t, out.Redirect)
	})

	t.Run("success", func(t *testing.T) {
		token := &domain.OAuthToken{AccessToken: "at"}
		store.EXPECT().GetSession(gomock.Any(), "k").Return(&domain.OAuthSession{Key: "k", State: "s1"}, nil)
		provider.EXPECT().ExchangeCode(gomock.Any(), "c").Return(token, nil)
		provider.EXPECT().FetchResourceOwner(gomock.Any(), token).Return(alice, nil)
		store.EXPECT().DeleteSession(gomock.Any(), "k").Return(nil).Times(1)

		_, err := flow.Authenticate(ctx, federation.Attempt{SessionKey: "k", Request: request(url.Values{"code": {"c"}, "state": {"s1"}}, "")})
		require.NoError(t, err)
	})

	t.Run("state mismatch", func(t *testing.T) {
		store.EXPECT().GetSession(gomock.Any(), "k").Return(&domain.OAuthSession{Key: "k", State: "s1"}, nil)
		store.EXPECT().DeleteSession(gomock.Any(), "k").Return(nil).Times(1)

		_, err := flow.Authenticate(ctx, federation.Attempt{SessionKey: "k", Request: request(url.Values{"code": {"c"}, "state": {"s2"}}, "")})
		require.ErrorIs(t, err, federation.ErrInvalidState)
	})

	t.Run("provider error", func(t *testing.T) {
		store.EXPECT().DeleteSession(gomock.Any(), "k").Return(nil).Times(1)

		_, err := flow.Authenticate(ctx, federation.Attempt{SessionKey: "k", Request: request(url.Values{"error": {"server_error"}}, "")})
		require.ErrorIs(t, err, federation.ErrAuthenticationFailed)
	})

	t.Run("stop failure does not change the outcome", func(t *testing.T) {
		store.EXPECT().DeleteSession(gomock.Any(), "k").Return(errors.New("store down")).Times(1)

		_, err := flow.Authenticate(ctx, federation.Attempt{SessionKey: "k", Request: request(url.Values{"error": {"server_error"}}, "")})
		require.ErrorIs(t, err, federation.ErrAuthenticationFailed)
		assert.NotContains(t, err.Error(), "store down")
	})
}

func TestFlow_StoredValidTokenPassesThrough(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	token := &domain.OAuthToken{AccessToken: "at-stored", RefreshToken: "rt", Expiry: flowNow.Add(time.Minute)}
	f.storeToken(t, "alice", token)

	f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).Return(alice, nil)

	out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
	require.NoError(t, err)
	assert.Nil(t, out.Redirect)
	require.NotNil(t, out.Identity)
	assert.Equal(t, "at-stored", out.Identity.Token.AccessToken)
}

func TestFlow_RefreshesExpiredTokenBeforeRedirect(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at-old", RefreshToken: "rt-1", Expiry: flowNow.Add(-time.Minute)})

	refreshed := &domain.OAuthToken{AccessToken: "at-new", Expiry: flowNow.Add(time.Hour)}
	f.provider.EXPECT().RefreshToken(gomock.Any(), "rt-1").Return(refreshed, nil)
	f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).Return(alice, nil)

	out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
	require.NoError(t, err)
	require.NotNil(t, out.Identity)
	assert.Equal(t, "at-new", out.Identity.Token.AccessToken)
	assert.Equal(t, "rt-1", out.Identity.Token.RefreshToken)

	stored := f.storedToken(t, "alice")
	assert.Equal(t, "at-new", stored.AccessToken)
	assert.Equal(t, "rt-1", stored.RefreshToken)
}

func TestFlow_ExpiredWithoutRefreshPromptsConsent(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at-old", Expiry: flowNow.Add(-time.Minute)})
	f.provider.EXPECT().AuthCodeURL(federation.AuthURLOptions{Prompt: federation.PromptConsent}).
		Return("https://accounts.example.com/auth?prompt=consent", "s1", nil)

	out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
	require.NoError(t, err)
	require.NotNil(t, out.Redirect)
	assert.Contains(t, out.Redirect.URL, "prompt=consent")
}

func TestFlow_FailedRefreshPromptsConsent(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at-old", RefreshToken: "revoked", Expiry: flowNow.Add(-time.Minute)})
	f.provider.EXPECT().RefreshToken(gomock.Any(), "revoked").
		Return(nil, &federation.ProviderError{Provider: "google", Op: "refresh", Err: errors.New("invalid_grant")})
	f.provider.EXPECT().AuthCodeURL(federation.AuthURLOptions{Prompt: federation.PromptConsent}).
		Return("https://accounts.example.com/auth?prompt=consent", "s1", nil)

	out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
	require.NoError(t, err)
	require.NotNil(t, out.Redirect)
}

func TestFlow_RejectedStoredTokenPromptsConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("provider rejects token", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "revoked"})

		f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).
			Return(nil, &federation.ProviderError{Provider: "google", Op: "resource_owner", Err: errors.New("status 401")}).
			Times(2)
		f.provider.EXPECT().AuthCodeURL(federation.AuthURLOptions{Prompt: federation.PromptConsent}).
			Return("https://accounts.example.com/auth?prompt=consent", "s1", nil).
			Times(2)

		for i := 0; i < 2; i++ {
			out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
			require.NoError(t, err)
			require.NotNil(t, out.Redirect)
			assert.Equal(t, "s1", out.Redirect.State)
		}
		assert.Equal(t, 1, f.sessions.Len())
	})

	t.Run("other owner failures stay fatal", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at"})

		f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).Return(nil, errors.New("context canceled"))

		_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
		assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
		assert.Equal(t, 0, f.sessions.Len())
	})
}

func TestFlow_MalformedStoredCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{})

	require.NoError(t, f.creds.SaveCredential(ctx, &domain.CredentialRecord{Key: "alice", Token: []byte(`{`)}))

	_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
	require.ErrorIs(t, err, credentials.ErrMalformedCredentials)
}

func TestFlow_HostedDomainMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(t, domain.ProviderConfig{HostedDomain: "corp.example.org"})

	f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at"})
	f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).Return(alice, nil)

	_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "sess-1", CredentialKey: "alice", Request: request(nil, "")})
	require.Error(t, err)
	assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
	assert.ErrorIs(t, err, federation.ErrHostedDomain)
}

func TestFlow_UsernameField(t *testing.T) {
	ctx := context.Background()

	t.Run("configured field", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{UsernameField: "nickname"})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at"})
		f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).Return(alice, nil)

		out, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "s", CredentialKey: "alice", Request: request(nil, "")})
		require.NoError(t, err)
		assert.Equal(t, "ali", out.Identity.Username)
	})

	t.Run("missing field", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{UsernameField: "employee_id"})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at"})
		f.provider.EXPECT().FetchResourceOwner(gomock.Any(), gomock.Any()).Return(alice, nil)

		_, err := f.flow.Authenticate(ctx, federation.Attempt{SessionKey: "s", CredentialKey: "alice", Request: request(nil, "")})
		require.ErrorIs(t, err, federation.ErrUsernameMissing)
		assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
	})
}

func TestFlow_CheckAuthenticated(t *testing.T) {
	f := newFlowFixture(t, domain.ProviderConfig{})

	assert.ErrorIs(t, f.flow.CheckAuthenticated(nil), federation.ErrNoToken)
	assert.ErrorIs(t, f.flow.CheckAuthenticated(&domain.AuthenticatedIdentity{}), federation.ErrNoToken)

	valid := &domain.AuthenticatedIdentity{Token: &domain.OAuthToken{AccessToken: "a", Expiry: flowNow.Add(time.Second)}}
	assert.NoError(t, f.flow.CheckAuthenticated(valid))

	expiring := &domain.AuthenticatedIdentity{Token: &domain.OAuthToken{AccessToken: "a", Expiry: flowNow}}
	assert.NoError(t, f.flow.CheckAuthenticated(expiring))

	expired := &domain.AuthenticatedIdentity{Token: &domain.OAuthToken{AccessToken: "a", Expiry: flowNow.Add(-time.Second)}}
	err := f.flow.CheckAuthenticated(expired)
	assert.ErrorIs(t, err, federation.ErrTokenExpired)
	assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
}

func TestFlow_EnsureFresh(t *testing.T) {
	ctx := context.Background()

	t.Run("no credentials", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		_, err := f.flow.EnsureFresh(ctx, "nobody")
		assert.ErrorIs(t, err, federation.ErrNoToken)
	})

	t.Run("valid token", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at", Expiry: flowNow.Add(time.Hour)})

		tok, err := f.flow.EnsureFresh(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "at", tok.AccessToken)
	})

	t.Run("expired without refresh", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at", Expiry: flowNow.Add(-time.Hour)})

		_, err := f.flow.EnsureFresh(ctx, "alice")
		assert.ErrorIs(t, err, federation.ErrTokenExpired)
	})

	t.Run("expired with refresh", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at", RefreshToken: "rt", Expiry: flowNow.Add(-time.Hour)})
		f.provider.EXPECT().RefreshToken(gomock.Any(), "rt").
			Return(&domain.OAuthToken{AccessToken: "at-2", RefreshToken: "rt-2", Expiry: flowNow.Add(time.Hour)}, nil)

		tok, err := f.flow.EnsureFresh(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "at-2", tok.AccessToken)

		record, err := f.creds.GetCredential(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", record.Username)
		require.NotNil(t, record.RefreshToken)
		assert.Equal(t, "rt-2", *record.RefreshToken)
	})

	t.Run("refresh rejected", func(t *testing.T) {
		f := newFlowFixture(t, domain.ProviderConfig{})
		f.storeToken(t, "alice", &domain.OAuthToken{AccessToken: "at", RefreshToken: "rt", Expiry: flowNow.Add(-time.Hour)})
		f.provider.EXPECT().RefreshToken(gomock.Any(), "rt").Return(nil, errors.New("invalid_grant"))

		_, err := f.flow.EnsureFresh(ctx, "alice")
		assert.ErrorIs(t, err, federation.ErrAuthenticationFailed)
	})
}
