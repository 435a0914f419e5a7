// Package client talks to the blog service: the articles table, its
// realtime change stream and the identity endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/internal/config"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

// Config names the service and the credentials every request carries.
type Config = config.ClientConfig

var ErrSignedOut = errors.New("not signed in")

// TokenSource supplies the bearer token of the current session.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int    `json:"-"`
	Status  string `json:"status"`
	Message string `json:"error"`
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s %s", e.Code, e.Status, e.Message)
	}

	return fmt.Sprintf("%d %s", e.Code, e.Status)
}

// Client is the articles table of the service. It performs exactly one
// request per call.
type Client struct {
	http.Client
	Addr string

	anonKey string
	tokens  TokenSource
	log     *zap.SugaredLogger
}

type Option func(*Client)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = l }
}

func New(cfg Config, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		Client:  http.Client{Timeout: cfg.Timeout},
		Addr:    cfg.URL,
		anonKey: cfg.AnonKey,
		tokens:  tokens,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Addr+"/ping", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), err
}

func (c *Client) ListArticles(ctx context.Context) ([]model.Article, error) {
	var articles []model.Article
	if err := c.call(ctx, http.MethodGet, "/articles", nil, &articles); err != nil {
		return nil, err
	}

	return articles, nil
}

func (c *Client) InsertArticle(ctx context.Context, a model.Article) (model.Article, error) {
	var created model.Article
	if err := c.call(ctx, http.MethodPost, "/articles", a, &created); err != nil {
		return model.Article{}, err
	}

	return created, nil
}

// UpdateArticle patches the article only when it belongs to userID. A
// foreign or missing row is not an error.
func (c *Client) UpdateArticle(ctx context.Context, id int64, userID string, patch model.ArticlePatch) error {
	path := "/articles/" + strconv.FormatInt(id, 10) + "?user_id=" + url.QueryEscape(userID)

	return c.call(ctx, http.MethodPatch, path, patch, nil)
}

func (c *Client) DeleteArticle(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, "/articles/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Addr+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req.Header); err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debugw("request", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) authorize(ctx context.Context, h http.Header) error {
	h.Set("apikey", c.anonKey)
	if c.tokens == nil {
		return nil
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	h.Set("Authorization", "Bearer "+token)

	return nil
}

func decodeError(resp *http.Response) error {
	e := &StatusError{Code: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(e); err != nil || e.Status == "" {
		e.Status = http.StatusText(resp.StatusCode)
	}

	return e
}
