package changefeed

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/SergeyParamoshkin/blog/internal/applog"
	"github.com/SergeyParamoshkin/blog/internal/errresponse"
	"github.com/SergeyParamoshkin/blog/internal/model"
)

const (
	WriteTimeout = 10 * time.Second
	PingInterval = 30 * time.Second
)

// Handler streams a table's change events over a websocket as JSON text
// messages. Empty text messages are pings.
type Handler struct {
	hub      *Hub
	ping     time.Duration
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, ping time.Duration) *Handler {
	if ping <= 0 {
		ping = PingInterval
	}

	return &Handler{
		hub:  hub,
		ping: ping,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP expects the table as the {table} URL parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if table != model.ArticlesTable {
		if err := render.Render(w, r, errresponse.ErrNotFound); err != nil {
			applog.FromContext(r.Context()).Errorw("render", "err", err)
		}

		return
	}

	log := applog.FromContext(r.Context())

	// registered before the handshake completes, so every write committed
	// after the client sees 101 is delivered
	sub := h.hub.Subscribe(table)
	defer h.hub.Unsubscribe(sub)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		log.Debugw("websocket upgrade", "err", err)

		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the client sends nothing but control frames; reading surfaces its close
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// dropped by the hub
				ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber fell behind"))

				return
			}
			ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				log.Debugw("websocket write", "subscriber", sub.ID, "err", err)

				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
