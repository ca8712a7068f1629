// Package credentials converts authenticated tokens to and from their durable record form.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
)

// ErrMalformedCredentials is returned when a stored record cannot be turned back into a token.
var ErrMalformedCredentials = errors.New("malformed credentials")

// rawToken is the provider token as kept inside a record.
type rawToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Serialize builds the record for identity. The refresh value prefers the one issued
// with the token and falls back to previousRefresh when the provider did not rotate it.
// The caller sets the record key.
func Serialize(identity *domain.AuthenticatedIdentity, clientID, previousRefresh string) (*domain.CredentialRecord, error) {
	if identity == nil || identity.Token == nil || identity.Token.AccessToken == "" {
		return nil, fmt.Errorf("%w: identity has no access token", ErrMalformedCredentials)
	}
	tok := identity.Token.WithFallbackRefresh(previousRefresh)

	raw, err := json.Marshal(rawToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		IDToken:      tok.IDToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}

	var refresh *string
	if tok.RefreshToken != "" {
		refresh = &tok.RefreshToken
	}

	return &domain.CredentialRecord{
		Provider:     identity.Provider,
		ClientID:     clientID,
		Username:     identity.Username,
		Token:        raw,
		RefreshToken: refresh,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

// Deserialize restores the token held by record.
func Deserialize(record *domain.CredentialRecord) (*domain.OAuthToken, error) {
	if record == nil || len(record.Token) == 0 {
		return nil, fmt.Errorf("%w: token missing", ErrMalformedCredentials)
	}

	var raw rawToken
	if err := json.Unmarshal(record.Token, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredentials, err)
	}
	if raw.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token missing", ErrMalformedCredentials)
	}

	tok := &domain.OAuthToken{
		AccessToken:  raw.AccessToken,
		TokenType:    raw.TokenType,
		RefreshToken: raw.RefreshToken,
		IDToken:      raw.IDToken,
		Expiry:       raw.Expiry,
	}
	if record.RefreshToken != nil && *record.RefreshToken != "" {
		tok.RefreshToken = *record.RefreshToken
	}
	return tok, nil
}
