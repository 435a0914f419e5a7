// Package auth is the identity provider of the blog service. It signs HS256
// access tokens for a user's profile and keeps the refresh tokens that let a
// client resume its session.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

const Issuer = "blog"

// RefreshTTL bounds how long an unused refresh token stays redeemable.
const RefreshTTL = 30 * 24 * time.Hour

var (
	ErrInvalidToken   = errors.New("invalid access token")
	ErrInvalidRefresh = errors.New("invalid refresh token")
)

// userNamespace scopes the name-based user ids derived from emails.
var userNamespace = uuid.MustParse("7c1f6f0e-3c36-4f43-9d1e-6c0b1d8a52e4")

// Claims carried by an access token. The subject is the user id.
type Claims struct {
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	gojwt.RegisteredClaims
}

// Tokens issues, verifies and refreshes sessions.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	refresh map[string]grant
}

type grant struct {
	user    model.User
	expires time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		refresh: map[string]grant{},
	}
}

// UserID returns the stable id of the user signing in with email.
func UserID(email string) string {
	return uuid.NewSHA1(userNamespace, []byte(strings.ToLower(strings.TrimSpace(email)))).String()
}

// Issue creates a session for u with a fresh access and refresh token.
func (t *Tokens) Issue(u model.User) (*model.Session, error) {
	now := t.now()
	expires := now.Add(t.ttl)

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		Email:     u.UserMetadata.Email,
		AvatarURL: u.UserMetadata.AvatarURL,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   u.ID,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(expires),
			ID:        ulid.Make().String(),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refresh := ulid.Make().String()
	t.mu.Lock()
	for k, g := range t.refresh {
		if !now.Before(g.expires) {
			delete(t.refresh, k)
		}
	}
	t.refresh[refresh] = grant{user: u, expires: now.Add(RefreshTTL)}
	t.mu.Unlock()

	return &model.Session{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresAt:    gojwt.NewNumericDate(expires).Time,
		User:         u,
	}, nil
}

// Verify checks the signature and expiry of an access token and returns
// its user.
func (t *Tokens) Verify(token string) (model.User, error) {
	claims := &Claims{}
	_, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(Issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return model.User{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return model.User{
		ID: claims.Subject,
		UserMetadata: model.UserMetadata{
			Email:     claims.Email,
			AvatarURL: claims.AvatarURL,
		},
	}, nil
}

// Refresh exchanges a refresh token for a new session. The old refresh
// token is spent; expired ones are rejected.
func (t *Tokens) Refresh(refresh string) (*model.Session, error) {
	t.mu.Lock()
	g, ok := t.refresh[refresh]
	delete(t.refresh, refresh)
	t.mu.Unlock()

	if !ok || !t.now().Before(g.expires) {
		return nil, ErrInvalidRefresh
	}

	return t.Issue(g.user)
}

func (t *Tokens) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.refresh)
}

func (t *Tokens) Revoke(refresh string) {
	t.mu.Lock()
	delete(t.refresh, refresh)
	t.mu.Unlock()
}
