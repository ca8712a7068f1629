// Package redis implements the connector's session and credential stores on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore implements domain.SessionStore using Redis hashes. Each key carries the
// session expiry so Redis evicts abandoned sessions on its own.
type SessionStore struct {
	client redis.UniversalClient
	prefix string // Optional prefix for keys
}

// NewSessionStore creates a new [SessionStore] instance
func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) redisKey(key string) string {
	return fmt.Sprintf("%s:oauth_session:%s", s.prefix, key)
}

// SaveSession stores the session and sets the key expiry to session.ExpiresAt.
func (s *SessionStore) SaveSession(ctx context.Context, session *domain.OAuthSession) error {
	key := s.redisKey(session.Key)

	entry := map[string]interface{}{
		"state":        session.State,
		"redirect_url": session.RedirectURL,
		"created_at":   session.CreatedAt.Unix(),
		"expires_at":   session.ExpiresAt.Unix(),
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, entry)
	if !session.ExpiresAt.IsZero() {
		pipe.ExpireAt(ctx, key, session.ExpiresAt)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set oauth session in Redis: %w", err)
	}

	return nil
}

// GetSession retrieves a session from Redis
func (s *SessionStore) GetSession(ctx context.Context, key string) (*domain.OAuthSession, error) {
	res, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth session from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	createdAt, err := parseUnix(res["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseUnix(res["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	session := &domain.OAuthSession{
		Key:         key,
		State:       res["state"],
		RedirectURL: res["redirect_url"],
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}
	if session.IsExpired(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}

	return session, nil
}

// DeleteSession removes a session from Redis
func (s *SessionStore) DeleteSession(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete oauth session from Redis: %w", err)
	}
	return nil
}

// CredentialStore implements domain.CredentialStore using Redis hashes. Credentials do
// not expire.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

// NewCredentialStore creates a new [CredentialStore] instance
func NewCredentialStore(client redis.UniversalClient, prefix string) *CredentialStore {
	return &CredentialStore{client: client, prefix: prefix}
}

func (s *CredentialStore) redisKey(key string) string {
	return fmt.Sprintf("%s:credential:%s", s.prefix, key)
}

// SaveCredential stores or replaces the record.
func (s *CredentialStore) SaveCredential(ctx context.Context, record *domain.CredentialRecord) error {
	key := s.redisKey(record.Key)

	entry := map[string]interface{}{
		"provider":   record.Provider,
		"client_id":  record.ClientID,
		"username":   record.Username,
		"token":      string(record.Token),
		"updated_at": record.UpdatedAt.Unix(),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, entry)
	if record.RefreshToken != nil {
		pipe.HSet(ctx, key, "refresh_token", *record.RefreshToken)
	} else {
		pipe.HDel(ctx, key, "refresh_token")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set credential in Redis: %w", err)
	}

	return nil
}

// GetCredential retrieves a record from Redis
func (s *CredentialStore) GetCredential(ctx context.Context, key string) (*domain.CredentialRecord, error) {
	res, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get credential from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, domain.ErrCredentialNotFound
	}

	updatedAt, err := parseUnix(res["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	record := &domain.CredentialRecord{
		Key:       key,
		Provider:  res["provider"],
		ClientID:  res["client_id"],
		Username:  res["username"],
		Token:     []byte(res["token"]),
		UpdatedAt: updatedAt,
	}
	if rt, ok := res["refresh_token"]; ok {
		record.RefreshToken = &rt
	}

	return record, nil
}

// DeleteCredential removes a record from Redis
func (s *CredentialStore) DeleteCredential(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete credential from Redis: %w", err)
	}
	return nil
}

// ListCredentials scans the credential keys under the store prefix.
func (s *CredentialStore) ListCredentials(ctx context.Context) ([]string, error) {
	prefix := s.redisKey("")

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan credentials in Redis: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping checks the connection, for use at startup.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("redis did not answer in time: %w", err)
		}
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func parseUnix(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if sec <= 0 {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0).UTC(), nil
}

var (
	_ domain.SessionStore     = (*SessionStore)(nil)
	_ domain.CredentialStore  = (*CredentialStore)(nil)
	_ domain.CredentialLister = (*CredentialStore)(nil)
)
