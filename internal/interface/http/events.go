package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yanqian/mealplanner/internal/domain/mealplan"
	"github.com/yanqian/mealplanner/internal/domain/session"
)

const (
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second
)

// Message kinds pushed to the browser.
const (
	MessageSession    = "session"
	MessageGeneration = "generation"
)

// Message is one frame on the event stream.
type Message struct {
	Type       string           `json:"type"`
	Session    *session.Event   `json:"session,omitempty"`
	Generation *mealplan.Status `json:"generation,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// EventHub fans session and generation events out to connected browsers.
type EventHub struct {
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventHub constructs a hub accepting connections from allowedOrigins.
func NewEventHub(allowedOrigins []string, logger *slog.Logger) *EventHub {
	return &EventHub{
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
		logger: logger.With("component", "http.events"),
	}
}

// Forward relays session transitions until ctx ends or events closes.
func (h *EventHub) Forward(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(Message{Type: MessageSession, Session: &evt})
		}
	}
}

// Broadcast sends msg to every connected client. Clients that fail are dropped.
func (h *EventHub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal event failed", "error", err)
		return
	}
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("event write failed, dropping client", "error", err)
			h.unregister(c)
		}
	}
}

// Clients reports how many browsers are connected.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = c.conn.Close()
	}
}

// Serve upgrades the request and keeps the connection registered until it closes.
func (h *EventHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn}
	h.register(client)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.write(websocket.PingMessage, nil); err != nil {
					h.unregister(client)
					return
				}
			}
		}
	}()

	// the read loop only detects the browser going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			close(done)
			h.unregister(client)
			return
		}
	}
}

func (h *EventHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}
