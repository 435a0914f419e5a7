package model

import (
	"strings"
	"time"
)

// Article data model. Rows of the articles table; id, user_id and created_at
// never change once the row exists.
type Article struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id"` // the author
	UserName    string    `json:"user_name"`
	Avatar      string    `json:"avatar"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Edited reports whether the article was updated after it was created.
func (a Article) Edited() bool {
	return a.UpdatedAt.After(a.CreatedAt)
}

// ArticlePatch is the partial payload of an update request.
type ArticlePatch struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Draft is the title/description input buffer shared by create and edit.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Blank reports whether the draft has no title once whitespace is trimmed.
func (d Draft) Blank() bool {
	return strings.TrimSpace(d.Title) == ""
}
