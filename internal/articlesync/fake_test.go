package articlesync

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

var errRemote = errors.New("remote unavailable")

type updateCall struct {
	id     int64
	userID string
	patch  model.ArticlePatch
}

// fakeRemote is an in-memory articles table. When echo is set every
// successful write is published to open subscriptions, the way the real
// service does.
type fakeRemote struct {
	mu sync.Mutex

	rows   []model.Article
	nextID int64
	echo   bool

	listErr   error
	insertErr error
	updateErr error
	deleteErr error
	subErr    error

	lists   int
	inserts []model.Article
	updates []updateCall
	deletes []int64
	subs    []*fakeSubscription
}

func newFakeRemote(rows ...model.Article) *fakeRemote {
	r := &fakeRemote{rows: rows, nextID: 1}
	for _, a := range rows {
		if a.ID >= r.nextID {
			r.nextID = a.ID + 1
		}
	}

	return r
}

func (r *fakeRemote) ListArticles(ctx context.Context) ([]model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := append([]model.Article(nil), r.rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *fakeRemote) InsertArticle(ctx context.Context, a model.Article) (model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inserts = append(r.inserts, a)
	if r.insertErr != nil {
		return model.Article{}, r.insertErr
	}
	a.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, a)
	r.publish(model.ChangeEvent{Type: model.EventInsert, Table: model.ArticlesTable, New: &a})

	return a, nil
}

func (r *fakeRemote) UpdateArticle(ctx context.Context, id int64, userID string, patch model.ArticlePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updates = append(r.updates, updateCall{id: id, userID: userID, patch: patch})
	if r.updateErr != nil {
		return r.updateErr
	}
	for i, a := range r.rows {
		if a.ID == id && a.UserID == userID {
			old, updated := a, a
			updated.Title, updated.Description, updated.UpdatedAt = patch.Title, patch.Description, patch.UpdatedAt
			r.rows[i] = updated
			r.publish(model.ChangeEvent{Type: model.EventUpdate, Table: model.ArticlesTable, New: &updated, Old: &old})
		}
	}

	return nil
}

func (r *fakeRemote) DeleteArticle(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deletes = append(r.deletes, id)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for i, a := range r.rows {
		if a.ID == id {
			old := a
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			r.publish(model.ChangeEvent{Type: model.EventDelete, Table: model.ArticlesTable, Old: &old})

			break
		}
	}

	return nil
}

func (r *fakeRemote) Subscribe(ctx context.Context, table string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subErr != nil {
		return nil, r.subErr
	}
	s := &fakeSubscription{events: make(chan model.ChangeEvent, 16), closed: make(chan struct{})}
	r.subs = append(r.subs, s)

	return s, nil
}

func (r *fakeRemote) publish(ev model.ChangeEvent) {
	if !r.echo {
		return
	}
	for _, s := range r.subs {
		s.send(ev)
	}
}

func (r *fakeRemote) subscriptions() []*fakeSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*fakeSubscription(nil), r.subs...)
}

func (r *fakeRemote) calls() (lists, inserts, updates, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lists, len(r.inserts), len(r.updates), len(r.deletes)
}

type fakeSubscription struct {
	mu       sync.Mutex
	events   chan model.ChangeEvent
	closed   chan struct{}
	isClosed bool
}

func (s *fakeSubscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isClosed {
		s.isClosed = true
		close(s.closed)
	}

	return nil
}

func (s *fakeSubscription) send(ev model.ChangeEvent) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *fakeSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isClosed
}

// fakeIdentity hands out sessions pushed with set.
type fakeIdentity struct {
	sessions chan *model.Session
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{sessions: make(chan *model.Session, 4)}
}

func (i *fakeIdentity) Watch(ctx context.Context) (<-chan *model.Session, error) {
	return i.sessions, nil
}

func (i *fakeIdentity) set(s *model.Session) {
	i.sessions <- s
}

// gatedRemote holds ListArticles until release is closed.
type gatedRemote struct {
	*fakeRemote

	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedRemote) ListArticles(ctx context.Context) ([]model.Article, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release

	return g.fakeRemote.ListArticles(ctx)
}
