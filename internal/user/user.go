package user

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/errresponse"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

type ctxKey int8

const ctxKeyUser ctxKey = iota

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrMissingAPIKey = errors.New("missing or invalid apikey")
)

// Verifier turns an access token into the user it was issued to.
type Verifier interface {
	Verify(token string) (model.User, error)
}

func NewContext(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

// FromContext returns the authenticated user stored by Authenticator.
func FromContext(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(model.User)

	return u, ok
}

// Authenticator middleware verifies the bearer token and loads its user on
// the request context. Websocket clients that cannot set headers may pass
// the token as the access_token query parameter.
func Authenticator(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				deny(w, r, errresponse.ErrUnauthorized(ErrMissingToken))

				return
			}

			u, err := v.Verify(token)
			if err != nil {
				deny(w, r, errresponse.ErrUnauthorized(err))

				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), u)))
		})
	}
}

// APIKey middleware rejects requests that do not carry key in the apikey
// header or query parameter.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("apikey")
			if got == "" {
				got = r.URL.Query().Get("apikey")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				deny(w, r, errresponse.ErrUnauthorized(ErrMissingAPIKey))

				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}

		return ""
	}

	return r.URL.Query().Get("access_token")
}

func deny(w http.ResponseWriter, r *http.Request, resp render.Renderer) {
	if err := render.Render(w, r, resp); err != nil {
		applog.FromContext(r.Context()).Errorw("render", "err", err)
	}
}
