package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/SergeyParamoshkin/blog/internal/model"
)

const (
	// RefreshMargin is how long before expiry a session is refreshed.
	RefreshMargin = time.Minute

	refreshCheck = 15 * time.Second
)

// Auth is the identity provider: it signs users in and out, keeps the
// session fresh and persists it to Config.SessionFile.
type Auth struct {
	http.Client
	Addr string

	anonKey string
	file    string
	log     *zap.SugaredLogger
	now     func() time.Time
	check   time.Duration

	refreshMu sync.Mutex

	mu       sync.Mutex
	session  *model.Session
	watchers map[chan *model.Session]struct{}
}

type AuthOption func(*Auth)

func WithAuthLogger(l *zap.SugaredLogger) AuthOption {
	return func(a *Auth) { a.log = l }
}

// NewAuth resumes the session saved in cfg.SessionFile, if any.
func NewAuth(cfg Config, opts ...AuthOption) *Auth {
	a := &Auth{
		Client:   http.Client{Timeout: cfg.Timeout},
		Addr:     cfg.URL,
		anonKey:  cfg.AnonKey,
		file:     cfg.SessionFile,
		log:      zap.NewNop().Sugar(),
		now:      time.Now,
		check:    refreshCheck,
		watchers: map[chan *model.Session]struct{}{},
	}
	for _, opt := range opts {
		opt(a)
	}

	s, err := a.load()
	if err != nil {
		a.log.Warnw("ignoring saved session", "file", a.file, "err", err)
	}
	a.session = s

	return a
}

// Session returns a copy of the current session, nil when signed out.
func (a *Auth) Session() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	return copySession(a.session)
}

// SignIn signs the user in with their profile.
func (a *Auth) SignIn(ctx context.Context, email, avatarURL string) (*model.Session, error) {
	body := map[string]string{"email": email, "avatar_url": avatarURL}

	s, err := a.token(ctx, "id_token", body)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	a.set(s)

	return copySession(s), nil
}

// Refresh exchanges the refresh token for a new session.
func (a *Auth) Refresh(ctx context.Context) (*model.Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	return a.refresh(ctx)
}

func (a *Auth) refresh(ctx context.Context) (*model.Session, error) {
	cur := a.Session()
	if cur == nil {
		return nil, ErrSignedOut
	}

	s, err := a.token(ctx, "refresh_token", map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			// the refresh token is spent or revoked
			a.set(nil)
		}

		return nil, fmt.Errorf("refresh: %w", err)
	}
	a.set(s)

	return copySession(s), nil
}

// SignOut revokes the refresh token and forgets the session. The session is
// forgotten even when the service cannot be reached.
func (a *Auth) SignOut(ctx context.Context) error {
	cur := a.Session()
	if cur == nil {
		return nil
	}
	a.set(nil)

	b, err := json.Marshal(map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Addr+"/auth/logout", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", a.anonKey)

	resp, err := a.Do(req)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sign out: %w", decodeError(resp))
	}

	return nil
}

// AccessToken returns the current access token, refreshing the session
// first when it is about to expire.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	s, err := a.fresh(ctx)
	if err != nil {
		return "", err
	}

	return s.AccessToken, nil
}

// fresh returns the session, refreshed when it expires within
// RefreshMargin. Concurrent callers share one refresh.
func (a *Auth) fresh(ctx context.Context) (*model.Session, error) {
	s := a.Session()
	if s == nil {
		return nil, ErrSignedOut
	}
	if !s.Expired(a.now().Add(RefreshMargin)) {
		return s, nil
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// another caller may have refreshed meanwhile
	if s = a.Session(); s == nil {
		return nil, ErrSignedOut
	}
	if !s.Expired(a.now().Add(RefreshMargin)) {
		return s, nil
	}

	return a.refresh(ctx)
}

// Watch emits the current session, then every sign-in, sign-out and
// refresh until ctx is done. Only the latest session is kept for a slow
// reader. While watched, the session is refreshed before it expires.
func (a *Auth) Watch(ctx context.Context) (<-chan *model.Session, error) {
	ch := make(chan *model.Session, 1)

	a.mu.Lock()
	a.watchers[ch] = struct{}{}
	ch <- copySession(a.session)
	a.mu.Unlock()

	go func() {
		ticker := time.NewTicker(a.check)
		defer ticker.Stop()
		defer func() {
			a.mu.Lock()
			delete(a.watchers, ch)
			close(ch)
			a.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.refreshIfNeeded(ctx)
			}
		}
	}()

	return ch, nil
}

func (a *Auth) refreshIfNeeded(ctx context.Context) {
	if _, err := a.fresh(ctx); err != nil && !errors.Is(err, ErrSignedOut) {
		a.log.Warnw("session refresh failed", "err", err)
	}
}

func (a *Auth) token(ctx context.Context, grant string, body map[string]string) (*model.Session, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Addr+"/auth/token?grant_type="+grant, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", a.anonKey)

	resp, err := a.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var s model.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &s, nil
}

// set replaces the session, saves it and notifies the watchers.
func (a *Auth) set(s *model.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.session = copySession(s)
	if err := a.save(s); err != nil {
		a.log.Warnw("saving session", "file", a.file, "err", err)
	}

	for ch := range a.watchers {
		// keep only the latest
		select {
		case <-ch:
		default:
		}
		ch <- copySession(s)
	}
}

func (a *Auth) load() (*model.Session, error) {
	if a.file == "" {
		return nil, nil
	}

	data, err := os.ReadFile(a.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s model.Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, nil
	}

	return &s, nil
}

func (a *Auth) save(s *model.Session) error {
	if a.file == "" {
		return nil
	}
	if s == nil {
		if err := os.Remove(a.file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		return nil
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.file), 0o700); err != nil {
		return err
	}

	return os.WriteFile(a.file, data, 0o600)
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	c := *s

	return &c
}
