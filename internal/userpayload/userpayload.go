package userpayload

import (
	"net/http"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

//--
// Response payloads for the identity endpoints.
//--

const RoleAuthenticated = "authenticated"

type UserPayload struct {
	*model.User
	Role string `json:"role"`
}

func NewUserPayloadResponse(u *model.User) *UserPayload {
	return &UserPayload{User: u}
}

func (u *UserPayload) Render(w http.ResponseWriter, r *http.Request) error {
	u.Role = RoleAuthenticated

	return nil
}

// SessionPayload is returned by the token endpoint.
type SessionPayload struct {
	*model.Session
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

func NewSessionPayloadResponse(s *model.Session, expiresIn int64) *SessionPayload {
	return &SessionPayload{Session: s, ExpiresIn: expiresIn}
}

func (s *SessionPayload) Render(w http.ResponseWriter, r *http.Request) error {
	s.TokenType = "bearer"

	return nil
}
