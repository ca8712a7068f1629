package domain

import "time"

// OAuthSession is the transient state kept between the redirect to the provider and
// the callback. It is consumed exactly once.
type OAuthSession struct {
	Key         string    `bson:"_id"          json:"key"`
	State       string    `bson:"state"        json:"state"`
	RedirectURL string    `bson:"redirect_url" json:"redirect_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at"   json:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at"   json:"expires_at"`
}

// IsExpired reports whether the session outlived its round trip.
func (s *OAuthSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
