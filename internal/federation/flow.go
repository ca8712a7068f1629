package federation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/internal/audit"
	"github.com/pilab-dev/googleconnector/internal/credentials"
	"github.com/pilab-dev/googleconnector/internal/metrics"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/pilab-dev/googleconnector/log"
	"github.com/pilab-dev/googleconnector/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PromptConsent forces the provider to ask the user for consent again.
const PromptConsent = "consent"

// Attempt parameterizes one pass through the flow.
type Attempt struct {
	// SessionKey identifies the pending OAuth session of this client.
	SessionKey string
	// CredentialKey identifies stored credentials. Defaults to SessionKey.
	CredentialKey string
	Request       *domain.RequestToken
	FacadeContext any
}

func (a Attempt) credentialKey() string {
	if a.CredentialKey != "" {
		return a.CredentialKey
	}
	return a.SessionKey
}

// Redirect instructs the host to send the user to the provider and end the request.
type Redirect struct {
	URL   string
	State string
}

// Outcome is the result of Authenticate: either a Redirect or an Identity.
type Outcome struct {
	Redirect *Redirect
	Identity *domain.AuthenticatedIdentity
	// RedirectURL is the post-login target recorded when the flow started.
	RedirectURL string
}

// Flow is the authorization-code state machine for one provider. It holds no state of
// its own; pending sessions live in the Bridge and tokens in the CredentialStore.
type Flow struct {
	provider    Provider
	sessions    *oauthsession.Bridge
	credentials domain.CredentialStore
	logger      log.Logger
	now         func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithCredentialStore enables lookup of stored tokens and persistence of new ones.
func WithCredentialStore(store domain.CredentialStore) FlowOption {
	return func(f *Flow) { f.credentials = store }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a Flow for provider.
func NewFlow(provider Provider, sessions *oauthsession.Bridge, opts ...FlowOption) *Flow {
	f := &Flow{
		provider: provider,
		sessions: sessions,
		logger:   log.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(map[string]interface{}{"provider": provider.Name()})
	return f
}

// Provider returns the provider the flow talks to.
func (f *Flow) Provider() Provider { return f.provider }

// Authenticate dispatches an inbound request: a provider error fails the attempt, a
// request without code starts (or short-circuits) authorization and a request with code
// completes it.
func (f *Flow) Authenticate(ctx context.Context, a Attempt) (*Outcome, error) {
	ctx, span := tracing.Tracer.Start(ctx, "federation.Flow.Authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("oauth2.provider", f.provider.Name()))

	var (
		out *Outcome
		err error
	)
	if a.Request.Error() == "" && a.Request.Code() == "" {
		out, err = f.authorize(ctx, a)
	} else {
		out, err = f.CompleteAuthorization(ctx, a)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// authorize handles a request that carries no code. A usable stored token (directly or
// after a refresh) completes the attempt; otherwise a redirect is returned and the
// session is left for the callback.
func (f *Flow) authorize(ctx context.Context, a Attempt) (*Outcome, error) {
	record, stored, err := f.storedToken(ctx, a.credentialKey())
	if err != nil {
		f.stop(ctx, a.SessionKey)
		return nil, err
	}

	var (
		token *domain.OAuthToken
		opts  AuthURLOptions
	)
	switch {
	case stored == nil:
	case !stored.ExpiredAt(f.now()):
		token = stored
	case stored.HasRefreshToken():
		refreshed, err := f.provider.RefreshToken(ctx, stored.RefreshToken)
		if err != nil {
			f.logger.Warn(ctx, "Refreshing stored token failed, asking for consent again", map[string]interface{}{
				"credential": a.credentialKey(),
				"error":      err.Error(),
			})
			opts.Prompt = PromptConsent
			break
		}
		metrics.TokensRefreshedTotal.WithLabelValues(f.provider.Name()).Inc()
		token = refreshed.WithFallbackRefresh(stored.RefreshToken)
	default:
		opts.Prompt = PromptConsent
	}

	if token == nil {
		return f.redirect(ctx, a, opts)
	}

	owner, err := f.provider.FetchResourceOwner(ctx, token)
	var perr *ProviderError
	if errors.As(err, &perr) {
		// The provider no longer accepts the stored token (revoked, or expired without
		// an expiry on record); the user has to grant access again.
		f.logger.Warn(ctx, "Stored token rejected by provider, asking for consent again", map[string]interface{}{
			"credential": a.credentialKey(),
			"error":      err.Error(),
		})
		return f.redirect(ctx, a, AuthURLOptions{Prompt: PromptConsent})
	}

	defer f.stop(ctx, a.SessionKey)

	if err != nil {
		f.fail(metrics.ReasonOwner)
		return nil, authFailed(err)
	}

	previous := ""
	if record != nil && record.RefreshToken != nil {
		previous = *record.RefreshToken
	}
	identity, err := f.finish(ctx, a, token, owner, previous)
	if err != nil {
		return nil, err
	}
	return &Outcome{Identity: identity}, nil
}

// redirect begins a new authorization. The session is kept for the callback unless
// starting it failed.
func (f *Flow) redirect(ctx context.Context, a Attempt, opts AuthURLOptions) (*Outcome, error) {
	redirect, err := f.BeginAuthorization(ctx, a.SessionKey, a.Request.Referer(), opts)
	if err != nil {
		f.stop(ctx, a.SessionKey)
		return nil, err
	}
	return &Outcome{Redirect: redirect}, nil
}

// BeginAuthorization builds the provider URL and starts the session that the callback
// will be checked against. The host must redirect to the returned URL and stop
// processing the request.
func (f *Flow) BeginAuthorization(ctx context.Context, sessionKey, redirectURL string, opts AuthURLOptions) (*Redirect, error) {
	authURL, state, err := f.provider.AuthCodeURL(opts)
	if err != nil {
		return nil, err
	}

	if err := f.sessions.Start(ctx, sessionKey, redirectURL, oauthsession.Vars{State: state}); err != nil {
		return nil, fmt.Errorf("start oauth session: %w", err)
	}

	metrics.AuthRedirectsTotal.WithLabelValues(f.provider.Name()).Inc()
	f.logger.Debug(ctx, "Redirecting to provider", map[string]interface{}{
		"session": sessionKey,
		"prompt":  opts.Prompt,
	})

	return &Redirect{URL: authURL, State: state}, nil
}

// CompleteAuthorization consumes a provider callback. The pending session is removed
// on every path.
func (f *Flow) CompleteAuthorization(ctx context.Context, a Attempt) (*Outcome, error) {
	defer f.stop(ctx, a.SessionKey)

	if code := a.Request.Error(); code != "" {
		return nil, f.providerReported(ctx, a)
	}

	session, found, err := f.sessions.Read(ctx, a.SessionKey)
	if err != nil {
		return nil, err
	}

	queryState := a.Request.State()
	if !found || queryState == "" || queryState != session.State {
		return nil, f.invalidState(ctx, a, found)
	}

	code := a.Request.Code()
	if code == "" {
		f.fail(metrics.ReasonNoToken)
		return nil, authFailed(errors.New("authorization code missing from callback"))
	}

	token, err := f.provider.ExchangeCode(ctx, code)
	if err != nil {
		f.fail(metrics.ReasonExchange)
		f.logger.Error(ctx, "Authorization code exchange failed", err, map[string]interface{}{"session": a.SessionKey})
		return nil, authFailed(err)
	}

	previous := ""
	if record, _, err := f.storedToken(ctx, a.credentialKey()); err == nil && record != nil && record.RefreshToken != nil {
		previous = *record.RefreshToken
	}

	if token == nil {
		f.fail(metrics.ReasonNoToken)
		return nil, authFailed(ErrNoToken)
	}
	owner, err := f.provider.FetchResourceOwner(ctx, token)
	if err != nil {
		f.fail(metrics.ReasonOwner)
		return nil, authFailed(err)
	}

	identity, err := f.finish(ctx, a, token, owner, previous)
	if err != nil {
		return nil, err
	}
	return &Outcome{Identity: identity, RedirectURL: session.RedirectURL}, nil
}

func (f *Flow) providerReported(ctx context.Context, a Attempt) error {
	msg := "OAuth2 error: " + html.EscapeString(a.Request.Error())
	if desc := a.Request.ErrorDescription(); desc != "" {
		msg += " (" + html.EscapeString(desc) + ")"
	}

	f.fail(metrics.ReasonProviderError)
	f.logger.Warn(ctx, "Provider reported an error in callback", map[string]interface{}{
		"session": a.SessionKey,
		"error":   a.Request.Error(),
	})

	return authFailed(&ProviderError{Provider: f.provider.Name(), Op: "authorize", Err: errors.New(msg)})
}

func (f *Flow) invalidState(ctx context.Context, a Attempt, sessionFound bool) error {
	f.fail(metrics.ReasonInvalidState)
	f.logger.Warn(ctx, "OAuth2 state mismatch in callback", map[string]interface{}{
		"session":        a.SessionKey,
		"session_found":  sessionFound,
		"state_received": a.Request.State() != "",
	})
	audit.Log(f.provider.Name(), audit.ActionInvalidState, "", a.SessionKey, "state mismatch", false, ErrInvalidState)

	if !sessionFound {
		return fmt.Errorf("%w: %w: no pending session", ErrAuthenticationFailed, ErrInvalidState)
	}
	return fmt.Errorf("%w: %w: state does not match pending session", ErrAuthenticationFailed, ErrInvalidState)
}

// finish checks the owner of token and produces the identity.
func (f *Flow) finish(ctx context.Context, a Attempt, token *domain.OAuthToken, owner *domain.ResourceOwner, previousRefresh string) (*domain.AuthenticatedIdentity, error) {
	cfg := f.provider.Config()

	if cfg.HostedDomain != "" && !strings.EqualFold(owner.HostedDomain, cfg.HostedDomain) {
		f.fail(metrics.ReasonOwner)
		return nil, authFailed(fmt.Errorf("%w: %q", ErrHostedDomain, cfg.HostedDomain))
	}

	username, err := UsernameOf(owner, cfg.UsernameField)
	if err != nil {
		f.fail(metrics.ReasonOwner)
		return nil, authFailed(err)
	}

	identity := &domain.AuthenticatedIdentity{
		Username:      username,
		Provider:      f.provider.Name(),
		Token:         token,
		Owner:         owner,
		FacadeContext: a.FacadeContext,
	}

	if err := f.persist(ctx, a.credentialKey(), identity, previousRefresh); err != nil {
		return nil, err
	}

	metrics.AuthSuccessTotal.WithLabelValues(f.provider.Name()).Inc()
	audit.Log(f.provider.Name(), audit.ActionLogin, username, a.SessionKey, "", true, nil)

	return identity, nil
}

// CheckAuthenticated rejects an identity whose token has expired since it was issued.
func (f *Flow) CheckAuthenticated(identity *domain.AuthenticatedIdentity) error {
	if identity == nil || identity.Token == nil {
		return authFailed(ErrNoToken)
	}
	if identity.Token.ExpiredAt(f.now()) {
		return authFailed(ErrTokenExpired)
	}
	return nil
}

// EnsureFresh returns the stored token for credentialKey, refreshing and re-persisting
// it when it has expired. No user interaction is possible here, so an expired token
// without refresh value is an authentication failure.
func (f *Flow) EnsureFresh(ctx context.Context, credentialKey string) (*domain.OAuthToken, error) {
	record, stored, err := f.storedToken(ctx, credentialKey)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, authFailed(ErrNoToken)
	}
	if !stored.ExpiredAt(f.now()) {
		return stored, nil
	}
	if !stored.HasRefreshToken() {
		return nil, authFailed(ErrTokenExpired)
	}

	refreshed, err := f.provider.RefreshToken(ctx, stored.RefreshToken)
	if err != nil {
		f.logger.Error(ctx, "Refreshing stored token failed", err, map[string]interface{}{"credential": credentialKey})
		audit.Log(f.provider.Name(), audit.ActionRefresh, record.Username, credentialKey, "", false, err)
		return nil, authFailed(err)
	}
	metrics.TokensRefreshedTotal.WithLabelValues(f.provider.Name()).Inc()
	refreshed = refreshed.WithFallbackRefresh(stored.RefreshToken)

	identity := &domain.AuthenticatedIdentity{
		Username: record.Username,
		Provider: f.provider.Name(),
		Token:    refreshed,
	}
	if err := f.persist(ctx, credentialKey, identity, stored.RefreshToken); err != nil {
		return nil, err
	}
	audit.Log(f.provider.Name(), audit.ActionRefresh, record.Username, credentialKey, "", true, nil)

	return refreshed, nil
}

// storedToken loads the credentials kept for key. Both results are nil when none exist.
func (f *Flow) storedToken(ctx context.Context, key string) (*domain.CredentialRecord, *domain.OAuthToken, error) {
	if f.credentials == nil || key == "" {
		return nil, nil, nil
	}

	record, err := f.credentials.GetCredential(ctx, key)
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load credentials: %w", err)
	}

	token, err := credentials.Deserialize(record)
	if err != nil {
		return nil, nil, err
	}
	return record, token, nil
}

func (f *Flow) persist(ctx context.Context, key string, identity *domain.AuthenticatedIdentity, previousRefresh string) error {
	if f.credentials == nil || key == "" {
		return nil
	}

	record, err := credentials.Serialize(identity, f.provider.Config().ClientID, previousRefresh)
	if err != nil {
		return err
	}
	record.Key = key

	if err := f.credentials.SaveCredential(ctx, record); err != nil {
		f.logger.Error(ctx, "Failed to persist credentials", err, map[string]interface{}{"credential": key})
		return fmt.Errorf("persist credentials: %w", err)
	}
	return nil
}

// stop tears down the pending session. Errors are logged; the outcome of the attempt
// stands.
func (f *Flow) stop(ctx context.Context, sessionKey string) {
	if err := f.sessions.Stop(ctx, sessionKey); err != nil {
		f.logger.Error(ctx, "Failed to stop oauth session", err, map[string]interface{}{"session": sessionKey})
	}
}

func (f *Flow) fail(reason string) {
	metrics.AuthFailureTotal.WithLabelValues(f.provider.Name(), reason).Inc()
}
