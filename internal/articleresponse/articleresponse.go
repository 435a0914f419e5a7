package articleresponse

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

// ArticleResponse is the response payload for the Article data model.
//
// Render is called on the response before it is marshalled, so computed
// fields are filled there.
type ArticleResponse struct {
	*model.Article

	// computed from created_at / updated_at
	Edited bool `json:"edited"`
}

func NewArticleListResponse(articles []model.Article) []render.Renderer {
	list := make([]render.Renderer, 0, len(articles))
	for i := range articles {
		list = append(list, NewArticleResponse(&articles[i]))
	}

	return list
}

func NewArticleResponse(article *model.Article) *ArticleResponse {
	return &ArticleResponse{Article: article}
}

func (rd *ArticleResponse) Render(w http.ResponseWriter, r *http.Request) error {
	rd.Edited = rd.Article.Edited()

	return nil
}

// CountResponse reports how many rows an update or delete matched.
type CountResponse struct {
	Count int64 `json:"count"`
}

func NewCountResponse(n int64) *CountResponse {
	return &CountResponse{Count: n}
}

func (c *CountResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
