// Package hub pushes alert updates to dashboard clients over WebSocket.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 16
)

// Message is the JSON frame sent to clients. Fired holds the alerts raised by
// the last cycle and Active the unacknowledged alerts after it.
type Message struct {
	Type   string         `json:"type"`
	Fired  []models.Alert `json:"fired"`
	Active []models.Alert `json:"active"`
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	// snapshot supplies the active alerts sent when a client connects
	snapshot func() []models.Alert

	done      chan struct{}
	closeOnce sync.Once
}

type client struct {
	send chan []byte
}

// New creates a hub. snapshot may be nil.
func New(snapshot func() []models.Alert) *Hub {
	if snapshot == nil {
		snapshot = func() []models.Alert { return nil }
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		snapshot: snapshot,
		done:     make(chan struct{}),
	}
}

// Broadcast sends the result of a cycle to every client. Clients whose buffer
// is full skip the message.
func (h *Hub) Broadcast(fired, active []models.Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	data, err := encode(fired, active)
	if err != nil {
		log := logger.WithComponent("hub")
		log.Error().Err(err).Msg("failed to encode alerts message")
		return
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. The server's Shutdown does not reach
// hijacked connections, so call this alongside it.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades the request and streams messages until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("hub")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// the dashboard is served from its own origin; access is gated by the auth token
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames and ends ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	c := &client{send: make(chan []byte, sendBuffer)}
	h.register(c)
	defer h.unregister(c)

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("websocket client connected")

	if data, err := encode(nil, h.snapshot()); err == nil {
		if err := write(ctx, conn, data); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case <-ctx.Done():
			return

		case data := <-c.send:
			if err := write(ctx, conn, data); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(n))
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func encode(fired, active []models.Alert) ([]byte, error) {
	if fired == nil {
		fired = []models.Alert{}
	}
	if active == nil {
		active = []models.Alert{}
	}
	return json.Marshal(Message{Type: "alerts", Fired: fired, Active: active})
}
