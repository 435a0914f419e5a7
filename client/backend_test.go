//go:build !integration

package client

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/require"

	"github.com/SergeyParamoshkin/blog/internal/article"
	"github.com/SergeyParamoshkin/blog/internal/auth"
	"github.com/SergeyParamoshkin/blog/internal/changefeed"
	"github.com/SergeyParamoshkin/blog/internal/user"
)

const (
	testAnonKey = "anon"
	testSecret  = "0123456789abcdef0123456789abcdef"
)

type backend struct {
	srv    *httptest.Server
	store  *article.Store
	hub    *changefeed.Hub
	tokens *auth.Tokens
}

// newBackend serves the same routes as the blog binary from a temp-dir
// database.
func newBackend(t *testing.T) *backend {
	t.Helper()

	hub := changefeed.NewHub(16)
	store, err := article.Open(filepath.Join(t.TempDir(), "blog.db"), hub)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	tokens := auth.NewTokens(testSecret, time.Hour)

	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Group(func(r chi.Router) {
		r.Use(user.APIKey(testAnonKey))
		r.Mount("/auth", auth.NewAPI(tokens).Routes())
		r.Group(func(r chi.Router) {
			r.Use(user.Authenticator(tokens))
			r.Mount("/articles", article.NewAPI(store, nil).Routes())
			r.Method("GET", "/realtime/{table}", changefeed.NewHandler(hub, time.Minute))
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &backend{srv: srv, store: store, hub: hub, tokens: tokens}
}

func (b *backend) config(t *testing.T) Config {
	return Config{
		URL:         b.srv.URL,
		AnonKey:     testAnonKey,
		Timeout:     5 * time.Second,
		SessionFile: filepath.Join(t.TempDir(), "session.yaml"),
	}
}
