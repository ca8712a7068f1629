package domain

import "time"

// OAuthToken is an access/refresh token pair issued by an external provider.
// A zero Expiry means the provider did not report one and the token never expires.
type OAuthToken struct {
	AccessToken  string    `bson:"access_token"            json:"access_token"`
	RefreshToken string    `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	TokenType    string    `bson:"token_type,omitempty"    json:"token_type,omitempty"`
	IDToken      string    `bson:"id_token,omitempty"      json:"id_token,omitempty"`
	Expiry       time.Time `bson:"expiry,omitempty"        json:"expiry,omitempty"`
}

// HasExpired reports whether the token carries an expiry that lies in the past.
func (t *OAuthToken) HasExpired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt is HasExpired evaluated against the given instant. A token is still valid
// at the exact instant of its expiry.
func (t *OAuthToken) ExpiredAt(now time.Time) bool {
	if t == nil || t.Expiry.IsZero() {
		return false
	}

	return now.After(t.Expiry)
}

// HasRefreshToken reports whether the token can be renewed without user interaction.
func (t *OAuthToken) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// WithFallbackRefresh returns a copy of t that keeps previous as its refresh value
// when the provider did not rotate it.
func (t *OAuthToken) WithFallbackRefresh(previous string) *OAuthToken {
	if t == nil {
		return nil
	}
	cp := *t
	if cp.RefreshToken == "" {
		cp.RefreshToken = previous
	}

	return &cp
}
