package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/client"
	"github.com/SergeyParamoshkin/blog/internal/articlesync"
	"github.com/SergeyParamoshkin/blog/internal/config"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

const BlogCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", 0)
}

func main() {
	usage := `Blog control.

The service url, anon key and session file default to BLOG_URL,
BLOG_ANON_KEY and BLOG_SESSION_FILE.

Usage:
    blogctl login --email=<email> [--avatar=<url>] [options]
    blogctl logout [options]
    blogctl list [options]
    blogctl post <title> <description> [options]
    blogctl edit <id> [--title=<title>] [--description=<text>] [options]
    blogctl delete <id> [--yes] [options]
    blogctl watch [options]

Options:
    -h --help                 Show this screen.
    --version                 Show version.
    --config=<path>           Client config file (yaml).
    --debug                   Log requests to stderr.
    --email=<email>           Account email.
    --avatar=<url>            Avatar shown next to your posts.
    --title=<title>           New title.
    --description=<text>      New description.
    -y --yes                  Do not ask for confirmation.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BlogCtlVersion)
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(opts)
	if err != nil {
		Err.Fatal(err)
	}
	defer app.log.Sync()

	if login_, _ := opts.Bool("login"); login_ {
		err = app.login(ctx, opts)
	} else if logout_, _ := opts.Bool("logout"); logout_ {
		err = app.auth.SignOut(ctx)
	} else if list_, _ := opts.Bool("list"); list_ {
		err = app.list(ctx)
	} else if post_, _ := opts.Bool("post"); post_ {
		err = app.post(ctx, opts)
	} else if edit_, _ := opts.Bool("edit"); edit_ {
		err = app.edit(ctx, opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		err = app.delete(ctx, opts, os.Stdin)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = app.watch(ctx)
	}
	if err != nil {
		Err.Fatal(err)
	}
}

type app struct {
	cfg  config.ClientConfig
	log  *zap.SugaredLogger
	auth *client.Auth
	core *articlesync.Core
}

func newApp(opts docopt.Opts) (*app, error) {
	path, _ := opts.String("--config")
	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if debug, _ := opts.Bool("--debug"); debug {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}
	sugar := logger.Sugar()

	auth := client.NewAuth(cfg, client.WithAuthLogger(sugar))
	remote := client.New(cfg, auth, client.WithLogger(sugar))

	return &app{
		cfg:  cfg,
		log:  sugar,
		auth: auth,
		core: articlesync.New(remote, articlesync.WithLogger(sugar), articlesync.WithIdentity(auth)),
	}, nil
}

var errSignedOut = errors.New("not signed in, run: blogctl login --email=<email>")

// start runs the core and waits for the first list to load.
func (a *app) start(ctx context.Context) error {
	if a.auth.Session() == nil {
		return errSignedOut
	}

	go a.core.Run(ctx)

	select {
	case <-a.core.Updates():
		return nil
	case <-time.After(a.cfg.Timeout):
		return errors.New("could not load articles")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *app) login(ctx context.Context, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	avatar, _ := opts.String("--avatar")

	s, err := a.auth.SignIn(ctx, email, avatar)
	if err != nil {
		return err
	}
	Out.Printf("signed in as %s", s.User.UserMetadata.Email)

	return nil
}

func (a *app) list(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	printArticles(os.Stdout, a.core.Articles(), time.Local)

	return nil
}

func (a *app) post(ctx context.Context, opts docopt.Opts) error {
	if err := a.start(ctx); err != nil {
		return err
	}

	title, _ := opts.String("<title>")
	description, _ := opts.String("<description>")
	if strings.TrimSpace(title) == "" {
		return errors.New("title must not be blank")
	}

	return a.core.SubmitDraft(ctx, model.Draft{Title: title, Description: description}, nil)
}

func (a *app) edit(ctx context.Context, opts docopt.Opts) error {
	id, err := articleID(opts)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}

	target, ok := find(a.core.Articles(), id)
	if !ok {
		return fmt.Errorf("article %d not found", id)
	}
	if target.UserID != a.auth.Session().User.ID {
		return fmt.Errorf("article %d belongs to %s", id, target.UserName)
	}

	a.core.BeginEdit(target)
	d := a.core.Draft()
	if title, err := opts.String("--title"); err == nil {
		d.Title = title
	}
	if description, err := opts.String("--description"); err == nil {
		d.Description = description
	}
	a.core.SetDraft(d)

	if d.Blank() {
		a.core.CancelEdit()
		return errors.New("title must not be blank")
	}

	return a.core.Submit(ctx)
}

func (a *app) delete(ctx context.Context, opts docopt.Opts, in io.Reader) error {
	id, err := articleID(opts)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}

	if yes, _ := opts.Bool("--yes"); !yes {
		label := strconv.FormatInt(id, 10)
		if target, ok := find(a.core.Articles(), id); ok {
			label = fmt.Sprintf("%d %q", id, target.Title)
		}
		if !confirm(os.Stdout, in, fmt.Sprintf("Delete article %s?", label)) {
			return nil
		}
	}

	return a.core.Delete(ctx, id)
}

// watch redraws the list on every change until interrupted.
func (a *app) watch(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}

	for {
		Out.Print("\033[H\033[2J")
		printArticles(os.Stdout, a.core.Articles(), time.Local)

		select {
		case <-ctx.Done():
			return nil
		case <-a.core.Updates():
		}
	}
}

func articleID(opts docopt.Opts) (int64, error) {
	s, _ := opts.String("<id>")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid article id %q", s)
	}

	return id, nil
}

func find(articles []model.Article, id int64) (model.Article, bool) {
	for _, a := range articles {
		if a.ID == id {
			return a, true
		}
	}

	return model.Article{}, false
}

func confirm(w io.Writer, in io.Reader, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)

	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}

	return false
}
