package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/article"
	"github.com/SergeyParamoshkin/blog/internal/auth"
	"github.com/SergeyParamoshkin/blog/internal/changefeed"
	"github.com/SergeyParamoshkin/blog/internal/metrics"
	"github.com/SergeyParamoshkin/blog/internal/user"
)

// Router builds the application routes. Every data route needs the anon
// key; /articles and /realtime also need a bearer token.
func (a *App) Router(store *article.Store, hub *changefeed.Hub, tokens *auth.Tokens, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(applog.Middleware(a.sugarLogger))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("root."))
		if err != nil {
			a.sugarLogger.Errorw(err.Error())
		}
	})

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).Debugw("ping")
		_, err := w.Write([]byte("pong"))
		if err != nil {
			a.sugarLogger.Errorw(err.Error())
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(user.APIKey(a.config.AnonKey))

		r.Mount("/auth", auth.NewAPI(tokens).Routes())

		r.Group(func(r chi.Router) {
			r.Use(user.Authenticator(tokens))

			// RESTy routes for "articles" resource
			r.Mount("/articles", article.NewAPI(store, m).Routes())

			// GET /realtime/articles upgrades to the change stream
			r.Method(http.MethodGet, "/realtime/{table}", changefeed.NewHandler(hub, a.config.PingInterval))
		})
	})

	return r
}

// Errors handed to render.Respond directly are logged and replaced by a
// generic body.
func init() {
	render.Respond = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		if err, ok := v.(error); ok {
			// We set a default error status response code if one hasn't been set.
			if _, ok := r.Context().Value(render.StatusCtxKey).(int); !ok {
				w.WriteHeader(http.StatusBadRequest)
			}

			applog.FromContext(r.Context()).Errorw("responding with error", "err", err)
			render.DefaultResponder(w, r, render.M{"status": "error"})

			return
		}

		render.DefaultResponder(w, r, v)
	}
}
