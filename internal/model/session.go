package model

import "time"

// UserMetadata holds the profile fields the identity provider exposes.
type UserMetadata struct {
	Email     string `json:"email" yaml:"email"`
	AvatarURL string `json:"avatar_url" yaml:"avatar_url"`
}

// User is the authenticated user carried by a Session.
type User struct {
	ID           string       `json:"id" yaml:"id"`
	UserMetadata UserMetadata `json:"user_metadata" yaml:"user_metadata"`
}

// Session is an authenticated user's identity and tokens.
type Session struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
	User         User      `json:"user" yaml:"user"`
}

// Same reports whether two sessions are interchangeable for request
// authorization: same user and same access token. Nil sessions are only
// the same as each other.
func (s *Session) Same(o *Session) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.User.ID == o.User.ID && s.AccessToken == o.AccessToken
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
