package articlerequest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/articles", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	return r
}

func TestArticleRequestBind(t *testing.T) {
	data := &ArticleRequest{}
	require.NoError(t, render.Bind(jsonRequest(`{"id":7,"title":"t","description":"d","user_id":"u"}`), data))
	assert.Zero(t, data.Article.ID, "id is protected")
	assert.Equal(t, "t", data.Title)
	assert.Equal(t, "u", data.UserID)

	tests := []struct {
		name string
		body string
		err  error
	}{
		{"no fields", `{}`, ErrMissingFields},
		{"blank title", `{"title":" \t","description":"d"}`, ErrBlankTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, render.Bind(jsonRequest(tt.body), &ArticleRequest{}), tt.err)
		})
	}

	assert.Error(t, render.Bind(jsonRequest(`{"title":"t"}`), &ArticleRequest{}), "description required")
}

func TestPatchRequestBind(t *testing.T) {
	data := &PatchRequest{}
	require.NoError(t, render.Bind(jsonRequest(`{"title":"t","description":"","updated_at":"2024-03-01T12:00:00Z"}`), data))
	assert.Equal(t, "t", data.Title)
	assert.False(t, data.UpdatedAt.IsZero())

	assert.ErrorIs(t, render.Bind(jsonRequest(`{}`), &PatchRequest{}), ErrMissingFields)
	assert.ErrorIs(t, render.Bind(jsonRequest(`{"title":""}`), &PatchRequest{}), ErrBlankTitle)
}
