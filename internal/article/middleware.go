package article

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/errresponse"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

type ctxKey int8

const ctxKeyArticle ctxKey = iota

// ArticleCtx middleware is used to load an Article object from
// the URL parameters passed through as the request. In case
// the Article could not be found, we stop here and return a 404.
func (a *API) ArticleCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := articleID(r)
		if err != nil {
			respond(w, r, errresponse.ErrNotFound)

			return
		}

		article, err := a.store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			respond(w, r, errresponse.ErrNotFound)

			return
		}
		if err != nil {
			applog.FromContext(r.Context()).Errorw("load article", "id", id, "err", err)
			respond(w, r, errresponse.ErrInternal(err))

			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyArticle, &article)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func articleFromContext(ctx context.Context) *model.Article {
	// ArticleCtx always sets it; a missing value is a routing bug and the
	// recoverer handles the panic.
	return ctx.Value(ctxKeyArticle).(*model.Article)
}

func articleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "articleID"), 10, 64)
}
