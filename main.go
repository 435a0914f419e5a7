//
// Blog
// ====
// The articles service behind the blog: a REST table of articles, a
// realtime change stream over websocket and a small identity provider.
// Pass the -routes flag to print the route docs: `go run . -routes`
//
// Boot the server:
// ----------------
// $ BLOG_ANON_KEY=anon BLOG_JWT_SECRET=0123456789abcdef0123456789abcdef go run .
//
// Client requests:
// ----------------
// $ curl -X POST -H 'apikey: anon' -d '{"email":"me@example.com"}' http://localhost:3333/auth/token
// {"access_token":"eyJ...","refresh_token":"01H...","expires_at":"...","user":{...},"token_type":"bearer","expires_in":3600}
//
// $ curl -H 'apikey: anon' -H 'Authorization: Bearer eyJ...' http://localhost:3333/articles
// []
//
// $ curl -H 'apikey: anon' -H 'Authorization: Bearer eyJ...' \
//     -d '{"title":"Hi","description":"first post"}' http://localhost:3333/articles
// {"id":1,"title":"Hi","description":"first post","user_id":"...",...,"edited":false}
//
// $ curl -X DELETE -H 'apikey: anon' -H 'Authorization: Bearer eyJ...' http://localhost:3333/articles/1
// {"count":1}
//
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/docgen"
	"go.opentelemetry.io/otel/metric/global"
	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/article"
	"github.com/SergeyParamoshkin/blog/internal/auth"
	"github.com/SergeyParamoshkin/blog/internal/changefeed"
	"github.com/SergeyParamoshkin/blog/internal/config"
	"github.com/SergeyParamoshkin/blog/internal/metrics"
)

const ServiceName = "blog"

type App struct {
	sugarLogger *zap.SugaredLogger
	config      config.Config
}

func main() {
	cfg, err := config.Load(config.GetEnv(config.EnvPrefix+"CONFIG", ""))
	if err != nil {
		log.Fatal(err)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "application port")
	flag.StringVar(&cfg.DiagAddr, "diag_addr", cfg.DiagAddr, "diag port")
	flag.BoolVar(&cfg.Routes, "routes", cfg.Routes, "Generate router documentation")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "development logging")
	flag.StringVar(&cfg.Database, "db", cfg.Database, "sqlite database path")
	flag.Parse()

	logger, err := applog.New(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() // flushes buffer, if any
	sugar := logger.Sugar()

	a := App{
		sugarLogger: sugar,
		config:      cfg,
	}

	exporter, err := metrics.NewExporter()
	if err != nil {
		a.sugarLogger.Panicf("failed to initialize prometheus exporter %v", err)
	}
	global.SetMeterProvider(exporter.MeterProvider())
	m := metrics.New(global.Meter(ServiceName))

	if cfg.Routes {
		// the docs only need the routing tree
		fmt.Println(docgen.MarkdownRoutesDoc(a.Router(nil, nil, nil, m), docgen.MarkdownOpts{
			ProjectPath: "github.com/SergeyParamoshkin/blog",
			Intro:       "Routes of the blog articles service.",
		}))

		return
	}

	if err := cfg.Validate(); err != nil {
		a.sugarLogger.Fatalw("invalid configuration", "err", err)
	}

	hub := changefeed.NewHub(cfg.SubscriberBuffer, changefeed.WithLogger(sugar), changefeed.WithMetrics(m))

	store, err := article.Open(cfg.Database, hub)
	if err != nil {
		a.sugarLogger.Fatalw("failed to open store", "database", cfg.Database, "err", err)
	}
	defer store.Close()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	r := a.Router(store, hub, tokens, m)

	diagRouter := chi.NewRouter()
	diagRouter.Get("/metrics", exporter.ServeHTTP)

	go func() {
		a.sugarLogger.Infow("listening", "addr", cfg.Addr, "database", cfg.Database)
		err := http.ListenAndServe(cfg.Addr, r)
		if err != nil {
			a.sugarLogger.Errorw(err.Error())
		}
	}()

	err = http.ListenAndServe(cfg.DiagAddr, diagRouter)
	if err != nil {
		a.sugarLogger.Errorw(err.Error())
	}
}
