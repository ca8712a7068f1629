// Package cache provides in-memory implementations of the connector's stores.
package cache

import (
	"context"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/googleconnector/domain"
)

// MemorySessionStore implements domain.SessionStore using ttlcache. Entries are evicted
// once the session's ExpiresAt passes.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, domain.OAuthSession]
}

// NewMemorySessionStore creates a new in-memory session store with automatic cleanup.
func NewMemorySessionStore() *MemorySessionStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.OAuthSession](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemorySessionStore{cache: cache}
}

// SaveSession implements domain.SessionStore.
func (s *MemorySessionStore) SaveSession(_ context.Context, session *domain.OAuthSession) error {
	ttl := ttlcache.NoTTL
	if !session.ExpiresAt.IsZero() {
		ttl = time.Until(session.ExpiresAt)
		if ttl <= 0 {
			s.cache.Delete(session.Key)
			return nil
		}
	}
	s.cache.Set(session.Key, *session, ttl)
	return nil
}

// GetSession implements domain.SessionStore.
func (s *MemorySessionStore) GetSession(_ context.Context, key string) (*domain.OAuthSession, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, domain.ErrSessionNotFound
	}
	session := item.Value()
	return &session, nil
}

// DeleteSession implements domain.SessionStore.
func (s *MemorySessionStore) DeleteSession(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Len counts the pending sessions.
func (s *MemorySessionStore) Len() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemorySessionStore) Close() error {
	s.cache.Stop()
	return nil
}

// MemoryCredentialStore implements domain.CredentialStore. Credentials never expire on
// their own; token expiry is handled by the flow.
type MemoryCredentialStore struct {
	cache *ttlcache.Cache[string, domain.CredentialRecord]
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, domain.CredentialRecord](ttlcache.NoTTL),
		),
	}
}

// SaveCredential implements domain.CredentialStore.
func (s *MemoryCredentialStore) SaveCredential(_ context.Context, record *domain.CredentialRecord) error {
	s.cache.Set(record.Key, cloneRecord(record), ttlcache.NoTTL)
	return nil
}

// GetCredential implements domain.CredentialStore.
func (s *MemoryCredentialStore) GetCredential(_ context.Context, key string) (*domain.CredentialRecord, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, domain.ErrCredentialNotFound
	}
	record := item.Value()
	out := cloneRecord(&record)
	return &out, nil
}

// DeleteCredential implements domain.CredentialStore.
func (s *MemoryCredentialStore) DeleteCredential(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// ListCredentials returns the stored keys in order.
func (s *MemoryCredentialStore) ListCredentials(_ context.Context) ([]string, error) {
	keys := s.cache.Keys()
	sort.Strings(keys)
	return keys, nil
}

func cloneRecord(record *domain.CredentialRecord) domain.CredentialRecord {
	out := *record
	out.Token = append([]byte(nil), record.Token...)
	if record.RefreshToken != nil {
		rt := *record.RefreshToken
		out.RefreshToken = &rt
	}
	return out
}

var (
	_ domain.SessionStore     = (*MemorySessionStore)(nil)
	_ domain.CredentialStore  = (*MemoryCredentialStore)(nil)
	_ domain.CredentialLister = (*MemoryCredentialStore)(nil)
)
