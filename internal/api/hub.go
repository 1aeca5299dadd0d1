package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/closer/internal/session"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 64
)

// Hub streams session events to WebSocket subscribers. It satisfies
// session.Notifier. A subscriber that falls a full buffer behind is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// NewHub builds a hub. An empty origins list accepts any origin.
func NewHub(origins []string, logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return slices.Contains(origins, r.Header.Get("Origin"))
			},
		},
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) Notify(_ context.Context, e session.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal event", "kind", e.Kind, "error", err)
		return
	}

	h.mu.RLock()
	var stale []*client
	for c := range h.clients[e.SessionID] {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	h.remove(stale...)
	if e.Kind == session.EventSessionEnded {
		h.closeSession(e.SessionID)
	}
}

// Subscribers returns the number of open streams for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// serve upgrades the request and streams events for sessionID until the
// peer goes away or the session ends.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), sessionID: sessionID}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("suggestion stream opened", "session_id", sessionID)

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for the peer closing; subscribers send nothing.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(cs ...*client) {
	if len(cs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range cs {
		set := h.clients[c.sessionID]
		if _, ok := set[c]; !ok {
			continue
		}
		delete(set, c)
		close(c.send)
		if len(set) == 0 {
			delete(h.clients, c.sessionID)
		}
		h.logger.Debug("suggestion stream closed", "session_id", c.sessionID)
	}
}

func (h *Hub) closeSession(sessionID string) {
	h.mu.RLock()
	cs := make([]*client, 0, len(h.clients[sessionID]))
	for c := range h.clients[sessionID] {
		cs = append(cs, c)
	}
	h.mu.RUnlock()
	h.remove(cs...)
}
