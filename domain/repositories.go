package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrSessionNotFound    = errors.New("oauth session not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

// CredentialRecord is the durable form of an authenticated token.
type CredentialRecord struct {
	Key          string          `bson:"_id"                json:"key"`
	Provider     string          `bson:"provider"           json:"provider"`
	ClientID     string          `bson:"client_id"          json:"client_id"`
	Username     string          `bson:"username,omitempty" json:"username,omitempty"`
	Token        json.RawMessage `bson:"token"              json:"token"`
	RefreshToken *string         `bson:"refresh_token"      json:"refresh_token"`
	UpdatedAt    time.Time       `bson:"updated_at"         json:"updated_at"`
}

// SessionStore persists OAuth sessions across the redirect round trip. Implementations
// must be shared between all instances serving callbacks and must honour ExpiresAt.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE
type SessionStore interface {
	// SaveSession stores the session, replacing any previous one with the same key.
	SaveSession(ctx context.Context, session *OAuthSession) error
	// GetSession returns ErrSessionNotFound when the key is unknown or expired.
	GetSession(ctx context.Context, key string) (*OAuthSession, error)
	// DeleteSession is a no-op for unknown keys.
	DeleteSession(ctx context.Context, key string) error
}

// CredentialStore persists serialized tokens between requests.
type CredentialStore interface {
	SaveCredential(ctx context.Context, record *CredentialRecord) error
	// GetCredential returns ErrCredentialNotFound when nothing is stored for key.
	GetCredential(ctx context.Context, key string) (*CredentialRecord, error)
	DeleteCredential(ctx context.Context, key string) error
}

// CredentialLister is implemented by credential stores that can enumerate their keys.
type CredentialLister interface {
	ListCredentials(ctx context.Context) ([]string, error)
}
