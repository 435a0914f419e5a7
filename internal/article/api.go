package article

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/articlerequest"
	"github.com/SergeyParamoshkin/blog/internal/articleresponse"
	"github.com/SergeyParamoshkin/blog/internal/errresponse"
	"github.com/SergeyParamoshkin/blog/internal/metrics"
	"github.com/SergeyParamoshkin/blog/internal/user"
)

var ErrNotOwner = errors.New("user_id must be the authenticated user")

// API serves the articles table. Every route expects user.Authenticator
// upstream.
type API struct {
	store   *Store
	metrics *metrics.Metrics
}

func NewAPI(store *Store, m *metrics.Metrics) *API {
	return &API{store: store, metrics: m}
}

func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", a.ListArticles)
	r.Post("/", a.CreateArticle)

	r.Route("/{articleID}", func(r chi.Router) {
		r.With(a.ArticleCtx).Get("/", a.GetArticle)
		r.Patch("/", a.UpdateArticle)
		r.Delete("/", a.DeleteArticle)
	})

	return r
}

// ListArticles returns every article, newest first.
func (a *API) ListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := a.store.List(r.Context())
	if err != nil {
		applog.FromContext(r.Context()).Errorw("list articles", "err", err)
		respond(w, r, errresponse.ErrInternal(err))

		return
	}

	if err := render.RenderList(w, r, articleresponse.NewArticleListResponse(articles)); err != nil {
		respond(w, r, errresponse.ErrRender(err))
	}
}

// CreateArticle persists the posted Article and returns it
// back to the client as an acknowledgement. The author must be the
// authenticated user.
func (a *API) CreateArticle(w http.ResponseWriter, r *http.Request) {
	data := &articlerequest.ArticleRequest{}
	if err := render.Bind(r, data); err != nil {
		respond(w, r, errresponse.ErrInvalidRequest(err))

		return
	}

	u, _ := user.FromContext(r.Context())
	if data.UserID == "" {
		data.UserID = u.ID
	}
	if data.UserID != u.ID {
		respond(w, r, errresponse.ErrForbidden(ErrNotOwner))

		return
	}

	article, err := a.store.Insert(r.Context(), *data.Article)
	if err != nil {
		applog.FromContext(r.Context()).Errorw("create article", "err", err)
		respond(w, r, errresponse.ErrInternal(err))

		return
	}
	a.mutation(r, "insert", 1)

	render.Status(r, http.StatusCreated)
	respond(w, r, articleresponse.NewArticleResponse(&article))
}

// GetArticle returns the Article loaded by ArticleCtx.
func (a *API) GetArticle(w http.ResponseWriter, r *http.Request) {
	respond(w, r, articleresponse.NewArticleResponse(articleFromContext(r.Context())))
}

// UpdateArticle updates the article if it belongs to the authenticated user
// and to the optional user_id filter. Matching no row is not an error.
func (a *API) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, err := articleID(r)
	if err != nil {
		respond(w, r, errresponse.ErrNotFound)

		return
	}

	data := &articlerequest.PatchRequest{}
	if err := render.Bind(r, data); err != nil {
		respond(w, r, errresponse.ErrInvalidRequest(err))

		return
	}

	u, _ := user.FromContext(r.Context())
	if filter := r.URL.Query().Get("user_id"); filter != "" && filter != u.ID {
		respond(w, r, articleresponse.NewCountResponse(0))

		return
	}

	n, err := a.store.Update(r.Context(), id, u.ID, *data.ArticlePatch)
	if err != nil {
		applog.FromContext(r.Context()).Errorw("update article", "id", id, "err", err)
		respond(w, r, errresponse.ErrInternal(err))

		return
	}
	a.mutation(r, "update", n)

	respond(w, r, articleresponse.NewCountResponse(n))
}

// DeleteArticle removes the article if it belongs to the authenticated user.
func (a *API) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, err := articleID(r)
	if err != nil {
		respond(w, r, errresponse.ErrNotFound)

		return
	}

	u, _ := user.FromContext(r.Context())
	n, err := a.store.Delete(r.Context(), id, u.ID)
	if err != nil {
		applog.FromContext(r.Context()).Errorw("delete article", "id", id, "err", err)
		respond(w, r, errresponse.ErrInternal(err))

		return
	}
	a.mutation(r, "delete", n)

	respond(w, r, articleresponse.NewCountResponse(n))
}

func (a *API) mutation(r *http.Request, kind string, n int64) {
	if a.metrics != nil && n > 0 {
		a.metrics.Mutation(r.Context(), kind)
	}
}

func respond(w http.ResponseWriter, r *http.Request, v render.Renderer) {
	if err := render.Render(w, r, v); err != nil {
		applog.FromContext(r.Context()).Errorw("render", "err", err)
	}
}
