package auth

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/errresponse"
	"github.com/SergeyParamoshkin/blog/internal/model"
	"github.com/SergeyParamoshkin/blog/internal/user"
	"github.com/SergeyParamoshkin/blog/internal/userpayload"
)

const (
	GrantPassword = "password"
	GrantIDToken  = "id_token"
	GrantRefresh  = "refresh_token"
)

// TokenRequest is the body of POST /auth/token. Sign-in grants carry the
// profile, the refresh grant carries the refresh token.
type TokenRequest struct {
	Email        string `json:"email"`
	AvatarURL    string `json:"avatar_url"`
	RefreshToken string `json:"refresh_token"`

	grant string
}

func (t *TokenRequest) Bind(r *http.Request) error {
	t.grant = r.URL.Query().Get("grant_type")
	if t.grant == "" {
		t.grant = GrantPassword
	}

	switch t.grant {
	case GrantPassword, GrantIDToken:
		t.Email = strings.TrimSpace(t.Email)
		if _, err := mail.ParseAddress(t.Email); err != nil {
			return errors.New("a valid email is required")
		}
	case GrantRefresh:
		if t.RefreshToken == "" {
			return errors.New("refresh_token is required")
		}
	default:
		return errors.New("unsupported grant_type")
	}

	return nil
}

type API struct {
	tokens *Tokens
}

func NewAPI(tokens *Tokens) *API {
	return &API{tokens: tokens}
}

// Routes mounts the identity endpoints. /user requires a bearer token.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/token", a.Token)
	r.Post("/logout", a.Logout)
	r.With(user.Authenticator(a.tokens)).Get("/user", a.User)

	return r
}

// Token signs a user in, or refreshes a session.
func (a *API) Token(w http.ResponseWriter, r *http.Request) {
	data := &TokenRequest{}
	if err := render.Bind(r, data); err != nil {
		respond(w, r, errresponse.ErrInvalidRequest(err))

		return
	}

	var (
		session *model.Session
		err     error
	)
	if data.grant == GrantRefresh {
		session, err = a.tokens.Refresh(data.RefreshToken)
		if err != nil {
			respond(w, r, errresponse.ErrUnauthorized(err))

			return
		}
	} else {
		session, err = a.tokens.Issue(model.User{
			ID: UserID(data.Email),
			UserMetadata: model.UserMetadata{
				Email:     data.Email,
				AvatarURL: data.AvatarURL,
			},
		})
		if err != nil {
			respond(w, r, errresponse.ErrInternal(err))

			return
		}
	}

	respond(w, r, userpayload.NewSessionPayloadResponse(session, int64(a.tokens.ttl.Seconds())))
}

// Logout spends the refresh token so the session cannot be resumed.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	data := &TokenRequest{}
	if err := render.DecodeJSON(r.Body, data); err == nil && data.RefreshToken != "" {
		a.tokens.Revoke(data.RefreshToken)
	}
	w.WriteHeader(http.StatusNoContent)
}

// User returns the user the bearer token was issued to.
func (a *API) User(w http.ResponseWriter, r *http.Request) {
	u, _ := user.FromContext(r.Context())
	respond(w, r, userpayload.NewUserPayloadResponse(&u))
}

func respond(w http.ResponseWriter, r *http.Request, v render.Renderer) {
	if err := render.Render(w, r, v); err != nil {
		applog.FromContext(r.Context()).Errorw("render", "err", err)
	}
}
