package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
)

// SessionStore implements domain.SessionStore on a BBoltStore.
type SessionStore struct {
	store *BBoltStore
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(store *BBoltStore) *SessionStore {
	return &SessionStore{store: store}
}

func (s *SessionStore) SaveSession(_ context.Context, session *domain.OAuthSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal oauth session: %w", err)
	}
	return s.store.Set(SessionsBucket, session.Key, data, session.ExpiresAt)
}

func (s *SessionStore) GetSession(_ context.Context, key string) (*domain.OAuthSession, error) {
	data, found, err := s.store.Get(SessionsBucket, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrSessionNotFound
	}

	var session domain.OAuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal oauth session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) DeleteSession(_ context.Context, key string) error {
	return s.store.Delete(SessionsBucket, key)
}

// CredentialStore implements domain.CredentialStore on a BBoltStore.
type CredentialStore struct {
	store *BBoltStore
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(store *BBoltStore) *CredentialStore {
	return &CredentialStore{store: store}
}

func (s *CredentialStore) SaveCredential(_ context.Context, record *domain.CredentialRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.store.Set(CredentialsBucket, record.Key, data, time.Time{})
}

func (s *CredentialStore) GetCredential(_ context.Context, key string) (*domain.CredentialRecord, error) {
	data, found, err := s.store.Get(CredentialsBucket, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrCredentialNotFound
	}

	var record domain.CredentialRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &record, nil
}

func (s *CredentialStore) DeleteCredential(_ context.Context, key string) error {
	return s.store.Delete(CredentialsBucket, key)
}

// ListCredentials returns the keys of all stored credentials.
func (s *CredentialStore) ListCredentials(_ context.Context) ([]string, error) {
	return s.store.Keys(CredentialsBucket)
}

var (
	_ domain.SessionStore     = (*SessionStore)(nil)
	_ domain.CredentialStore  = (*CredentialStore)(nil)
	_ domain.CredentialLister = (*CredentialStore)(nil)
)
