package articlerequest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

var (
	ErrMissingFields = errors.New("missing required Article fields")
	ErrBlankTitle    = errors.New("title must not be blank")
)

// ArticleRequest is the request payload of an insert. The id is assigned by
// the store, so the client's value is dropped.
type ArticleRequest struct {
	*model.Article

	ProtectedID int64 `json:"id"` // override 'id' json to have more control
}

func (a *ArticleRequest) Bind(r *http.Request) error {
	// a.Article is nil if no Article fields are sent in the request. Return an
	// error to avoid a nil pointer dereference.
	if a.Article == nil {
		return ErrMissingFields
	}
	if strings.TrimSpace(a.Title) == "" {
		return ErrBlankTitle
	}
	if a.Description == "" {
		return errors.New("description is required")
	}

	// ids are assigned by the store
	a.ProtectedID = 0
	a.Article.ID = 0

	return nil
}

// PatchRequest is the request payload of a partial update.
type PatchRequest struct {
	*model.ArticlePatch
}

func (p *PatchRequest) Bind(r *http.Request) error {
	if p.ArticlePatch == nil {
		return ErrMissingFields
	}
	if strings.TrimSpace(p.Title) == "" {
		return ErrBlankTitle
	}

	return nil
}
