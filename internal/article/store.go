package article

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Timestamps are stored as fixed-width UTC text so that they sort
// lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = errors.New("article not found")

// Notifier receives one ChangeEvent per committed write.
type Notifier interface {
	Publish(ev model.ChangeEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(model.ChangeEvent) {}

// Store is the articles table, kept in SQLite.
type Store struct {
	db     *sql.DB
	notify Notifier
	now    func() time.Time
}

// Open creates or opens the database at path and applies the schema.
// Committed writes are published to n, which may be nil.
func Open(path string, n Notifier) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if n == nil {
		n = nopNotifier{}
	}

	return &Store{db: db, notify: n, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selectArticle = `SELECT id, title, description, user_id, user_name, avatar, created_at, updated_at FROM articles`

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (model.Article, error) {
	var (
		a                    model.Article
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &a.UserID, &a.UserName, &a.Avatar, &createdAt, &updatedAt); err != nil {
		return model.Article{}, err
	}

	var err error
	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return model.Article{}, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return model.Article{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// List returns every article, newest first.
func (s *Store) List(ctx context.Context) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, selectArticle+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	articles := []model.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}

	return articles, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (model.Article, error) {
	return getArticle(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getArticle(ctx context.Context, q querier, id int64) (model.Article, error) {
	a, err := scanArticle(q.QueryRowContext(ctx, selectArticle+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Article{}, ErrNotFound
	}
	if err != nil {
		return model.Article{}, fmt.Errorf("get article %d: %w", id, err)
	}

	return a, nil
}

// Insert stores a as a new row and returns it with its assigned id. A zero
// created_at is set to now; updated_at never precedes created_at.
func (s *Store) Insert(ctx context.Context, a model.Article) (model.Article, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.UpdatedAt.Before(a.CreatedAt) {
		a.UpdatedAt = a.CreatedAt
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (title, description, user_id, user_name, avatar, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.Description, a.UserID, a.UserName, a.Avatar, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return model.Article{}, fmt.Errorf("insert article: %w", err)
	}

	if a.ID, err = res.LastInsertId(); err != nil {
		return model.Article{}, fmt.Errorf("insert article: %w", err)
	}

	s.publish(model.EventInsert, &a, nil)

	return a, nil
}

// Update applies patch to the row matching both id and userID and returns
// the number of rows changed. A zero updated_at is set to now.
func (s *Store) Update(ctx context.Context, id int64, userID string, patch model.ArticlePatch) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("update article %d: %w", id, err)
	}
	defer tx.Rollback()

	old, err := getArticle(ctx, tx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && old.UserID != userID) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	updated := old
	updated.Title = patch.Title
	updated.Description = patch.Description
	updated.UpdatedAt = patch.UpdatedAt.UTC()
	if patch.UpdatedAt.IsZero() {
		updated.UpdatedAt = s.now().UTC()
	}
	if updated.UpdatedAt.Before(old.CreatedAt) {
		updated.UpdatedAt = old.CreatedAt
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE articles SET title = ?, description = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		updated.Title, updated.Description, formatTime(updated.UpdatedAt), id, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("update article %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update article %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("update article %d: %w", id, err)
	}

	if n > 0 {
		s.publish(model.EventUpdate, &updated, &old)
	}

	return n, nil
}

// Delete removes the row matching both id and userID and returns the number
// of rows removed.
func (s *Store) Delete(ctx context.Context, id int64, userID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete article %d: %w", id, err)
	}
	defer tx.Rollback()

	old, err := getArticle(ctx, tx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && old.UserID != userID) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete article %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete article %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete article %d: %w", id, err)
	}

	if n > 0 {
		s.publish(model.EventDelete, nil, &old)
	}

	return n, nil
}

func (s *Store) publish(typ model.EventType, newRow, oldRow *model.Article) {
	s.notify.Publish(model.ChangeEvent{
		Type:            typ,
		Table:           model.ArticlesTable,
		New:             newRow,
		Old:             oldRow,
		CommitTimestamp: s.now().UTC(),
	})
}
