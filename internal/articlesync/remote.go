package articlesync

import (
	"context"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

// Remote is the hosted data service holding the articles table.
type Remote interface {
	// ListArticles returns every article, newest created_at first.
	ListArticles(ctx context.Context) ([]model.Article, error)
	// InsertArticle creates a row from a without its id.
	InsertArticle(ctx context.Context, a model.Article) (model.Article, error)
	// UpdateArticle updates the row matching both id and userID. Matching
	// zero rows is not an error.
	UpdateArticle(ctx context.Context, id int64, userID string, patch model.ArticlePatch) error
	// DeleteArticle deletes the row with id.
	DeleteArticle(ctx context.Context, id int64) error
	// Subscribe opens a change stream for every event on table.
	Subscribe(ctx context.Context, table string) (Subscription, error)
}

// Subscription is an open change stream. Events is closed once the stream
// ends; Close cancels it.
type Subscription interface {
	Events() <-chan model.ChangeEvent
	Close() error
}

// Identity is the identity provider. Watch emits the current session (nil
// when signed out) and then every later sign-in, sign-out or token refresh,
// until ctx is done.
type Identity interface {
	Watch(ctx context.Context) (<-chan *model.Session, error)
}
