package federation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/pilab-dev/googleconnector/log"
)

// NewProvider builds the Provider matching cfg.Type. An empty type is treated as
// Google, the connector's native provider.
func NewProvider(cfg domain.ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case domain.ProviderTypeGoogle, "":
		return NewGoogleProvider(cfg)
	case domain.ProviderTypeOAuth2:
		return NewBaseProvider(cfg)
	default:
		return nil, configError("unsupported provider type %q for %q", cfg.Type, cfg.Name)
	}
}

// Service holds one Flow per configured provider, sharing the session bridge and the
// credential store between them.
type Service struct {
	mu          sync.RWMutex
	flows       map[string]*Flow
	sessions    *oauthsession.Bridge
	credentials domain.CredentialStore
	logger      log.Logger
}

// NewService creates an empty Service. credentials may be nil, in which case tokens
// are neither looked up nor persisted.
func NewService(sessions *oauthsession.Bridge, credentials domain.CredentialStore, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		flows:       make(map[string]*Flow),
		sessions:    sessions,
		credentials: credentials,
		logger:      logger,
	}
}

// NewServiceFromConfigs builds providers for every cfg. The redirect_uri of a
// provider without one is derived from callbackBase.
func NewServiceFromConfigs(
	cfgs []domain.ProviderConfig,
	callbackBase string,
	sessions *oauthsession.Bridge,
	credentials domain.CredentialStore,
	logger log.Logger,
) (*Service, error) {
	s := NewService(sessions, credentials, logger)
	for _, cfg := range cfgs {
		if cfg.RedirectURI == "" && callbackBase != "" {
			cfg.RedirectURI = RedirectURIForProvider(callbackBase, cfg.Name)
		}
		provider, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		s.RegisterProvider(provider)
	}
	return s, nil
}

// RegisterProvider adds provider, replacing any provider with the same name.
func (s *Service) RegisterProvider(provider Provider) {
	opts := []FlowOption{WithLogger(s.logger)}
	if s.credentials != nil {
		opts = append(opts, WithCredentialStore(s.credentials))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[provider.Name()] = NewFlow(provider, s.sessions, opts...)
}

// Flow returns the flow of the named provider.
func (s *Service) Flow(name string) (*Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return flow, nil
}

// Providers lists the registered provider names in order.
func (s *Service) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.flows))
	for name := range s.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RedirectURIForProvider joins the callback base and the provider name.
// E.g., https://app.example.com/api/oauth2client/google
func RedirectURIForProvider(base, providerName string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(providerName)
}
