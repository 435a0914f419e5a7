// Package articlesync keeps an in-memory list of articles consistent with a
// Remote across the initial load, local mutations and change notifications
// pushed by other clients.
//
// All state is owned by the goroutine running Core.Run. Requests to the
// Remote run outside of it and post their results back, so the list is only
// ever written from one place. Local mutations never touch the list: a
// create, update or delete shows up once the service echoes it on the
// change stream.
package articlesync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

var (
	ErrNoSession = errors.New("articlesync: no active session")
	ErrClosed    = errors.New("articlesync: core stopped")
	ErrRunning   = errors.New("articlesync: already running")
)

// Core is the synchronization core. Create it with New and start Run before
// calling any other method.
type Core struct {
	remote   Remote
	identity Identity
	log      *zap.SugaredLogger
	now      func() time.Time

	running atomic.Bool
	ops     chan func()
	done    chan struct{}
	updates chan struct{}

	// owned by the Run goroutine
	runCtx    context.Context
	articles  []model.Article
	session   *model.Session
	editing   *int64
	draft     model.Draft
	gen       uint64
	cancelSub context.CancelFunc
}

type Option func(*Core)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Core) {
		c.log = log
	}
}

// WithIdentity makes Run follow the provider's sessions.
func WithIdentity(identity Identity) Option {
	return func(c *Core) {
		c.identity = identity
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

func New(remote Remote, opts ...Option) *Core {
	c := &Core{
		remote:  remote,
		log:     zap.NewNop().Sugar(),
		now:     time.Now,
		ops:     make(chan func()),
		done:    make(chan struct{}),
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run processes operations, session changes and change notifications until
// ctx is done. It may only be called once.
func (c *Core) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(c.done)

	c.runCtx = ctx
	defer c.unsubscribe()

	var sessions <-chan *model.Session
	if c.identity != nil {
		var err error
		sessions, err = c.identity.Watch(ctx)
		if err != nil {
			return fmt.Errorf("watch identity: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.ops:
			fn()
		case s, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			c.setSession(s)
		}
	}
}

// Updates signals after every change to the article list. Signals are
// coalesced: a reader that falls behind sees one pending signal.
func (c *Core) Updates() <-chan struct{} {
	return c.updates
}

// Articles returns a copy of the list in display order.
func (c *Core) Articles() []model.Article {
	var out []model.Article
	c.read(func() {
		out = append([]model.Article(nil), c.articles...)
	})

	return out
}

func (c *Core) Session() *model.Session {
	var s *model.Session
	c.read(func() {
		s = c.session
	})

	return s
}

func (c *Core) Draft() model.Draft {
	var d model.Draft
	c.read(func() {
		d = c.draft
	})

	return d
}

// EditingTarget returns the id of the article being edited, if any.
func (c *Core) EditingTarget() (int64, bool) {
	var (
		id int64
		ok bool
	)
	c.read(func() {
		if c.editing != nil {
			id, ok = *c.editing, true
		}
	})

	return id, ok
}

// SetSession replaces the current session. A new session triggers the
// initial load and replaces the change subscription; a nil session tears
// the subscription down.
func (c *Core) SetSession(ctx context.Context, s *model.Session) error {
	return c.do(ctx, func() {
		c.setSession(s)
	})
}

func (c *Core) SetDraft(d model.Draft) {
	_ = c.do(context.Background(), func() {
		c.draft = d
	})
}

// BeginEdit loads a into the draft and makes it the editing target.
func (c *Core) BeginEdit(a model.Article) {
	_ = c.do(context.Background(), func() {
		id := a.ID
		c.editing = &id
		c.draft = model.Draft{Title: a.Title, Description: a.Description}
	})
}

// CancelEdit clears the editing target and the draft.
func (c *Core) CancelEdit() {
	_ = c.do(context.Background(), func() {
		c.editing = nil
		c.draft = model.Draft{}
	})
}

// SubmitDraft stores d and target as the draft and editing target, then
// submits them. A blank title leaves the state untouched.
func (c *Core) SubmitDraft(ctx context.Context, d model.Draft, target *int64) error {
	if d.Blank() {
		return nil
	}

	var editing *int64
	if target != nil {
		id := *target
		editing = &id
	}
	if err := c.do(ctx, func() {
		c.draft = d
		c.editing = editing
	}); err != nil {
		return err
	}

	return c.Submit(ctx)
}

// Submit creates an article from the draft, or updates the editing target
// with it. A blank title makes Submit a no-op. On success the draft is reset
// and the editing target cleared; on failure both are left untouched and the
// error is returned. The list itself is not modified.
func (c *Core) Submit(ctx context.Context) error {
	var (
		draft   model.Draft
		target  *int64
		session *model.Session
	)
	if err := c.do(ctx, func() {
		draft, target, session = c.draft, c.editing, c.session
	}); err != nil {
		return err
	}

	if draft.Blank() {
		return nil
	}
	if session == nil {
		return ErrNoSession
	}

	now := c.now().UTC()
	if target != nil {
		id := *target
		err := c.remote.UpdateArticle(ctx, id, session.User.ID, model.ArticlePatch{
			Title:       draft.Title,
			Description: draft.Description,
			UserID:      session.User.ID,
			UpdatedAt:   now,
		})
		if err != nil {
			c.log.Warnw("update article failed", "id", id, "error", err)

			return fmt.Errorf("update article %d: %w", id, err)
		}

		return c.do(context.WithoutCancel(ctx), func() {
			c.editing = nil
			c.draft = model.Draft{}
		})
	}

	_, err := c.remote.InsertArticle(ctx, model.Article{
		Title:       draft.Title,
		Description: draft.Description,
		UserID:      session.User.ID,
		UserName:    session.User.UserMetadata.Email,
		Avatar:      session.User.UserMetadata.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		c.log.Warnw("insert article failed", "error", err)

		return fmt.Errorf("insert article: %w", err)
	}

	return c.do(context.WithoutCancel(ctx), func() {
		c.draft = model.Draft{}
	})
}

// Delete issues a delete for id. Confirmation and ownership are the
// caller's and the service's business. The list is left for the change
// stream to update; failures are returned but never retried.
func (c *Core) Delete(ctx context.Context, id int64) error {
	var session *model.Session
	if err := c.do(ctx, func() {
		session = c.session
	}); err != nil {
		return err
	}
	if session == nil {
		return ErrNoSession
	}

	if err := c.remote.DeleteArticle(ctx, id); err != nil {
		c.log.Debugw("delete article failed", "id", id, "error", err)

		return fmt.Errorf("delete article %d: %w", id, err)
	}

	return nil
}

func (c *Core) setSession(s *model.Session) {
	prev := c.session
	c.session = s

	if s == nil {
		c.unsubscribe()

		return
	}
	if prev.Same(s) {
		return
	}

	c.unsubscribe()
	c.subscribe()
	c.load()
}

func (c *Core) load() {
	ctx, gen := c.runCtx, c.gen
	go func() {
		list, err := c.remote.ListArticles(ctx)
		if err != nil {
			c.log.Debugw("initial load failed", "error", err)

			return
		}
		c.post(func() {
			if gen != c.gen {
				// the session changed while loading
				return
			}
			c.articles = list
			c.notify()
		})
	}()
}

func (c *Core) subscribe() {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.runCtx)
	c.cancelSub = cancel

	go func() {
		sub, err := c.remote.Subscribe(ctx, model.ArticlesTable)
		if err != nil {
			c.log.Warnw("subscribe failed", "table", model.ArticlesTable, "error", err)

			return
		}
		defer sub.Close()
		c.log.Debugw("subscribed", "table", model.ArticlesTable, "gen", gen)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					c.log.Infow("change stream ended", "table", model.ArticlesTable, "gen", gen)

					return
				}
				c.post(func() {
					if gen != c.gen {
						return
					}
					c.articles = Apply(c.articles, ev)
					c.notify()
				})
			}
		}
	}()
}

func (c *Core) unsubscribe() {
	if c.cancelSub == nil {
		return
	}
	c.gen++
	c.cancelSub()
	c.cancelSub = nil
}

func (c *Core) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// do runs fn on the Run goroutine and waits for it.
func (c *Core) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case c.ops <- func() {
		defer close(ran)
		fn()
	}:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran

	return nil
}

// post hands fn to the Run goroutine without waiting. It is dropped once the
// core has stopped.
func (c *Core) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.done:
	}
}

// read runs fn on the Run goroutine, or directly once Run has returned and
// the state can no longer change.
func (c *Core) read(fn func()) {
	if err := c.do(context.Background(), fn); errors.Is(err, ErrClosed) {
		fn()
	}
}
