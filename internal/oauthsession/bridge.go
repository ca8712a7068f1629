// Package oauthsession keeps the anti-forgery state and the post-login target across
// the redirect to the provider and back.
package oauthsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
)

// DefaultTTL bounds how long a pending session waits for its callback.
const DefaultTTL = 10 * time.Minute

// Vars are the values started with a session.
type Vars struct {
	State string
}

// Bridge exposes start/read/stop over a durable SessionStore.
type Bridge struct {
	store domain.SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(b *Bridge) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// NewBridge creates a Bridge over store.
func NewBridge(store domain.SessionStore, opts ...Option) *Bridge {
	b := &Bridge{store: store, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start records a pending session for key, replacing any previous one.
func (b *Bridge) Start(ctx context.Context, key, redirectURL string, vars Vars) error {
	if key == "" {
		return errors.New("oauth session key is required")
	}
	if vars.State == "" {
		return errors.New("oauth session state is required")
	}

	now := b.now().UTC()
	err := b.store.SaveSession(ctx, &domain.OAuthSession{
		Key:         key,
		State:       vars.State,
		RedirectURL: redirectURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(b.ttl),
	})
	if err != nil {
		return fmt.Errorf("save oauth session: %w", err)
	}
	return nil
}

// Read returns the pending session for key. found is false when there is none or it
// has expired.
func (b *Bridge) Read(ctx context.Context, key string) (session *domain.OAuthSession, found bool, err error) {
	session, err = b.store.GetSession(ctx, key)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get oauth session: %w", err)
	}
	if session.IsExpired(b.now()) {
		return nil, false, nil
	}
	return session, true, nil
}

// Stop removes the session for key. Stopping an unknown key is not an error.
func (b *Bridge) Stop(ctx context.Context, key string) error {
	if err := b.store.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("delete oauth session: %w", err)
	}
	return nil
}
