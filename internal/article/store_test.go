package article

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []model.ChangeEvent
}

func (r *recorder) Publish(ev model.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChangeEvent(nil), r.events...)
}

func openStore(t *testing.T) (*Store, *recorder) {
	t.Helper()

	rec := &recorder{}
	s, err := Open(filepath.Join(t.TempDir(), "blog.db"), rec)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return t0.Add(time.Hour) }

	return s, rec
}

func post(user string, title string, created time.Time) model.Article {
	return model.Article{
		Title:       title,
		Description: "body of " + title,
		UserID:      user,
		UserName:    user + "@example.com",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestStoreInsertAndList(t *testing.T) {
	s, rec := openStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, post("u1", "first", t0))
	require.NoError(t, err)
	second, err := s.Insert(ctx, post("u2", "second", t0.Add(time.Minute)))
	require.NoError(t, err)
	tie, err := s.Insert(ctx, post("u2", "tie", t0.Add(time.Minute)))
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{tie.ID, second.ID, first.ID}, []int64{list[0].ID, list[1].ID, list[2].ID},
		"created_at desc, id desc")
	assert.Equal(t, first, list[2])

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, model.EventInsert, events[0].Type)
	assert.Equal(t, model.ArticlesTable, events[0].Table)
	assert.Equal(t, first, *events[0].New)
	assert.Nil(t, events[0].Old)
}

func TestStoreInsertDefaults(t *testing.T) {
	s, _ := openStore(t)

	a := post("u1", "no dates", time.Time{})
	a.UpdatedAt = time.Time{}
	got, err := s.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), got.CreatedAt)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestStoreListEmpty(t *testing.T) {
	s, _ := openStore(t)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestStoreGet(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, post("u1", "x", t0))
	require.NoError(t, err)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = s.Get(ctx, a.ID+1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdate(t *testing.T) {
	s, rec := openStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, post("u1", "before", t0))
	require.NoError(t, err)

	n, err := s.Update(ctx, a.ID, "u1", model.ArticlePatch{
		Title:       "after",
		Description: "new body",
		UserID:      "u1",
		UpdatedAt:   t0.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "new body", got.Description)
	assert.Equal(t, a.CreatedAt, got.CreatedAt)
	assert.True(t, got.Edited())

	events := rec.all()
	require.Len(t, events, 2)
	ev := events[1]
	assert.Equal(t, model.EventUpdate, ev.Type)
	assert.Equal(t, got, *ev.New)
	assert.Equal(t, a, *ev.Old)
}

func TestStoreUpdateClampsUpdatedAt(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, post("u1", "x", t0))
	require.NoError(t, err)

	_, err = s.Update(ctx, a.ID, "u1", model.ArticlePatch{Title: "y", UpdatedAt: t0.Add(-time.Hour)})
	require.NoError(t, err)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.False(t, got.Edited())
}

func TestStoreUpdateForeignRow(t *testing.T) {
	s, rec := openStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, post("u1", "mine", t0))
	require.NoError(t, err)

	n, err := s.Update(ctx, a.ID, "u2", model.ArticlePatch{Title: "stolen"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Update(ctx, a.ID+100, "u1", model.ArticlePatch{Title: "missing"})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
	assert.Len(t, rec.all(), 1, "no event without a changed row")
}

func TestStoreDelete(t *testing.T) {
	s, rec := openStore(t)
	ctx := context.Background()

	a, err := s.Insert(ctx, post("u1", "x", t0))
	require.NoError(t, err)

	n, err := s.Delete(ctx, a.ID, "u2")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Delete(ctx, a.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventDelete, events[1].Type)
	assert.Nil(t, events[1].New)
	assert.Equal(t, a.ID, events[1].Old.ID)
}
