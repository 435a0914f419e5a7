package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterServesInstruments(t *testing.T) {
	exporter, err := NewExporter()
	require.NoError(t, err)

	m := New(exporter.MeterProvider().Meter("test"))

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	ctx := context.Background()
	m.Mutation(ctx, "insert")
	m.Published(ctx, "articles", 2)
	m.Subscribed(ctx, "articles", 1)
	m.Dropped(ctx, "articles")

	scrape := httptest.NewRecorder()
	exporter.ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, scrape.Code)
}
