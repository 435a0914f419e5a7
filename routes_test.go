package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/docgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/global"
	"go.uber.org/zap/zaptest"

	"github.com/SergeyParamoshkin/blog/internal/article"
	"github.com/SergeyParamoshkin/blog/internal/auth"
	"github.com/SergeyParamoshkin/blog/internal/changefeed"
	"github.com/SergeyParamoshkin/blog/internal/config"
	"github.com/SergeyParamoshkin/blog/internal/metrics"
)

func newTestApp(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.AnonKey = "anon"
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"

	a := App{sugarLogger: zaptest.NewLogger(t).Sugar(), config: cfg}
	m := metrics.New(global.Meter(ServiceName))
	hub := changefeed.NewHub(cfg.SubscriberBuffer)
	store, err := article.Open(filepath.Join(t.TempDir(), "blog.db"), hub)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(a.Router(store, hub, auth.NewTokens(cfg.JWTSecret, time.Hour), m))
	t.Cleanup(srv.Close)

	return srv
}

func get(t *testing.T, url string, header map[string]string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(b)
}

func TestRoutes(t *testing.T) {
	srv := newTestApp(t)

	code, body := get(t, srv.URL+"/ping", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body)

	code, body = get(t, srv.URL+"/", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "root.", body)

	code, _ = get(t, srv.URL+"/articles", nil)
	assert.Equal(t, http.StatusUnauthorized, code, "apikey required")

	code, _ = get(t, srv.URL+"/articles", map[string]string{"apikey": "anon"})
	assert.Equal(t, http.StatusUnauthorized, code, "bearer token required")

	code, _ = get(t, srv.URL+"/auth/user", map[string]string{"apikey": "anon"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSignInThenList(t *testing.T) {
	srv := newTestApp(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/token", strings.NewReader(`{"email":"alice@example.com"}`))
	require.NoError(t, err)
	req.Header.Set("apikey", "anon")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, jsonDecode(resp.Body, &session))

	code, body := get(t, srv.URL+"/articles", map[string]string{
		"apikey":        "anon",
		"Authorization": "Bearer " + session.AccessToken,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)
}

func TestRouteDocs(t *testing.T) {
	a := App{config: config.Default()}
	doc := docgen.MarkdownRoutesDoc(a.Router(nil, nil, nil, metrics.New(global.Meter(ServiceName))), docgen.MarkdownOpts{
		ProjectPath: "github.com/SergeyParamoshkin/blog",
	})

	for _, route := range []string{"/articles", "/auth", "/realtime/{table}", "/ping"} {
		assert.Contains(t, doc, route)
	}
}

func jsonDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
