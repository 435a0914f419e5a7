package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/SergeyParamoshkin/blog/internal/articlesync"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

// Subscribe opens the realtime change stream of table. The subscription
// ends when ctx is done, Close is called or the server goes away.
func (c *Client) Subscribe(ctx context.Context, table string) (articlesync.Subscription, error) {
	u, err := url.Parse(c.Addr + "/realtime/" + url.PathEscape(table))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	q := u.Query()
	q.Set("apikey", c.anonKey)
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		q.Set("access_token", token)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.Timeout,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, fmt.Errorf("subscribe %s: %w", table, decodeError(resp))
		}

		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	s := &subscription{
		ws:     ws,
		events: make(chan model.ChangeEvent),
		done:   make(chan struct{}),
	}
	go s.read(c)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

type subscription struct {
	ws     *websocket.Conn
	events chan model.ChangeEvent

	once sync.Once
	done chan struct{}
}

func (s *subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ws.Close()
	})

	return err
}

func (s *subscription) read(c *Client) {
	defer close(s.events)
	defer s.Close()

	for {
		typ, msg, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				c.log.Debugw("realtime read", "err", err)
			}

			return
		}
		if typ != websocket.TextMessage || len(strings.TrimSpace(string(msg))) == 0 {
			// ping
			continue
		}

		var ev model.ChangeEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.log.Warnw("realtime decode", "err", err)
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
