package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tablelink-backend/internal/domain"
	"tablelink-backend/internal/metrics"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one connected KDS or POS terminal. Writes are serialized so
// broadcasts and resync pushes never interleave on the wire.
type Client struct {
	Audience domain.Audience

	conn Conn
	mu   sync.Mutex
}

func NewClient(conn Conn, audience domain.Audience) *Client {
	return &Client{conn: conn, Audience: audience}
}

func (c *Client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Hub is the store-keyed registry of live terminal connections. Delivery is
// at-most-once: a socket that fails a write is pruned, and a reconnecting
// client recovers state through a resync request, not replay.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[int64]map[*Client]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) Subscribe(storeID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[storeID] == nil {
		h.subs[storeID] = make(map[*Client]struct{})
	}
	h.subs[storeID][c] = struct{}{}
	h.log.Info("terminal subscribed", "storeId", storeID, "audience", c.Audience, "subscribers", len(h.subs[storeID]))
}

func (h *Hub) Unsubscribe(storeID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(storeID, c)
}

func (h *Hub) removeLocked(storeID int64, c *Client) {
	clients, ok := h.subs[storeID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.subs, storeID)
	}
	_ = c.Close()
}

// Broadcast serializes the envelope once and writes it to every live socket
// for the store, pruning sockets that fail.
func (h *Hub) Broadcast(storeID int64, event domain.EventType, payload any) {
	data, err := json.Marshal(domain.EventEnvelope{Type: event, Payload: payload})
	if err != nil {
		h.log.Error("broadcast marshal failed", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.subs[storeID]))
	for c := range h.subs[storeID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var dead []*Client
	for _, c := range clients {
		if err := c.send(data); err != nil {
			dead = append(dead, c)
		}
	}
	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			h.removeLocked(storeID, c)
		}
		h.mu.Unlock()
		h.log.Info("dead sockets pruned", "storeId", storeID, "count", len(dead))
	}

	metrics.BroadcastsTotal.WithLabelValues(string(event)).Inc()
}

// SendTo pushes one envelope to a single client, for resync responses.
func (h *Hub) SendTo(c *Client, event domain.EventType, payload any) error {
	data, err := json.Marshal(domain.EventEnvelope{Type: event, Payload: payload})
	if err != nil {
		return err
	}
	return c.send(data)
}

// Subscribers reports the live connection count for a store.
func (h *Hub) Subscribers(storeID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[storeID])
}
