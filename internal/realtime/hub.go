// Package realtime relays material request events to dashboards connected
// over websocket. Each connection only sees its own organization's events.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/metrics"
	"vendfleet-backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	broadcastQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers are authenticated by token before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Hub struct {
	clients    map[*websocket.Conn]string
	clientsMux sync.Mutex
	broadcast  chan models.MaterialRequestEvent
	log        *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan models.MaterialRequestEvent, broadcastQueue),
		log:       log.With("component", "realtime"),
	}
}

// Run fans queued events out to clients until ctx ends, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.broadcast:
			h.deliver(e)
		case <-ticker.C:
			h.ping()
		}
	}
}

// Publish queues an event for delivery. A full queue drops the event for
// websocket clients; the outbox has already handed it to other publishers.
func (h *Hub) Publish(_ context.Context, e models.MaterialRequestEvent) error {
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn("realtime queue full, event dropped", "event", e.Name, "request_id", e.RequestID)
	}
	return nil
}

// Serve upgrades the connection and registers it under orgID. It blocks until
// the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orgID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.clientsMux.Lock()
	h.clients[conn] = orgID
	metrics.RealtimeClients.Set(float64(len(h.clients)))
	h.clientsMux.Unlock()
	h.log.Debug("websocket client connected", "organization_id", orgID)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients do not send anything meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	return len(h.clients)
}

func (h *Hub) deliver(e models.MaterialRequestEvent) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for conn, orgID := range h.clients {
		if orgID != e.OrganizationID {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

func (h *Hub) ping() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	deadline := time.Now().Add(writeWait)
	for conn := range h.clients {
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMux.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	metrics.RealtimeClients.Set(float64(len(h.clients)))
	h.clientsMux.Unlock()
}

func (h *Hub) closeAll() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.clients, conn)
	}
	metrics.RealtimeClients.Set(0)
}
