// Package changefeed fans committed row changes out to realtime subscribers.
package changefeed

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/SergeyParamoshkin/blog/internal/metrics"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

// Subscriber receives the events of one table. Events is closed when the
// subscriber is unsubscribed or dropped for falling behind.
type Subscriber struct {
	ID    ulid.ULID
	Table string

	events chan model.ChangeEvent
}

func (s *Subscriber) Events() <-chan model.ChangeEvent {
	return s.events
}

// Hub is a non-blocking publish/subscribe fan-out. Publish never waits on a
// subscriber: one whose buffer is full is dropped.
type Hub struct {
	buffer  int
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[ulid.ULID]*Subscriber
}

type Option func(*Hub)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Hub) { h.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(buffer int, opts ...Option) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	h := &Hub{
		buffer: buffer,
		log:    zap.NewNop().Sugar(),
		subs:   map[ulid.ULID]*Subscriber{},
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Hub) Subscribe(table string) *Subscriber {
	s := &Subscriber{
		ID:     ulid.Make(),
		Table:  table,
		events: make(chan model.ChangeEvent, h.buffer),
	}

	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribed(context.Background(), table, 1)
	}
	h.log.Debugw("subscribed", "subscriber", s.ID, "table", table)

	return s
}

// Unsubscribe removes s and closes its events. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if h.remove(s) {
		h.log.Debugw("unsubscribed", "subscriber", s.ID, "table", s.Table)
	}
}

func (h *Hub) remove(s *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s.ID]; !ok {
		return false
	}
	delete(h.subs, s.ID)
	close(s.events)

	if h.metrics != nil {
		h.metrics.Subscribed(context.Background(), s.Table, -1)
	}

	return true
}

// Publish delivers ev to every subscriber of ev.Table.
func (h *Hub) Publish(ev model.ChangeEvent) {
	var (
		slow      []*Subscriber
		delivered int
	)

	h.mu.RLock()
	for _, s := range h.subs {
		if s.Table != ev.Table {
			continue
		}
		select {
		case s.events <- ev:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		if h.remove(s) {
			h.log.Warnw("dropped slow subscriber", "subscriber", s.ID, "table", s.Table)
			if h.metrics != nil {
				h.metrics.Dropped(context.Background(), s.Table)
			}
		}
	}

	if h.metrics != nil && delivered > 0 {
		h.metrics.Published(context.Background(), ev.Table, delivered)
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}
