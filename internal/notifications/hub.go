package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"murmur/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per content item.
	maxConnsPerItem = 1000
	// Max total connections.
	maxTotalConns = 10000
)

// Hub fans comment events out to websocket subscribers. Connections are
// grouped by the content item they watch; user-directed notifications reach
// every connection the user holds.
type Hub struct {
	mu         sync.RWMutex
	items      map[uint]map[*Client]struct{}
	users      map[uint]map[*Client]struct{}
	totalConns int
	shutdown   chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		items:    make(map[uint]map[*Client]struct{}),
		users:    make(map[uint]map[*Client]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "comment hub" }

// Register attaches a connection watching itemID. userID may be zero for
// anonymous viewers; those connections receive thread events but no personal
// notifications.
func (h *Hub) Register(userID, itemID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.items[itemID]
	if !ok {
		m = make(map[*Client]struct{})
		h.items[itemID] = m
	}
	if len(m) >= maxConnsPerItem {
		return nil, errors.New("item connection limit reached")
	}

	client := NewClient(h, conn, userID, itemID)
	m[client] = struct{}{}
	if userID != 0 {
		u, ok := h.users[userID]
		if !ok {
			u = make(map[*Client]struct{})
			h.users[userID] = u
		}
		u[client] = struct{}{}
	}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()

	return client, nil
}

func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.items[client.ItemID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
		}
		if len(m) == 0 {
			delete(h.items, client.ItemID)
		}
	}
	if client.UserID != 0 {
		if u, ok := h.users[client.UserID]; ok {
			delete(u, client)
			if len(u) == 0 {
				delete(h.users, client.UserID)
			}
		}
	}
}

// BroadcastItem sends message to every connection watching itemID.
func (h *Hub) BroadcastItem(itemID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.items[itemID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// BroadcastUser sends message to every connection held by userID.
func (h *Hub) BroadcastUser(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.users[userID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.items {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Watchers reports how many connections currently watch itemID.
func (h *Hub) Watchers(itemID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items[itemID])
}

// StartWiring connects the Notifier to this hub: it subscribes to the comment
// channels and forwards messages to matching connections.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(channel, payload string) {
		switch {
		case channel == GlobalChannel:
			h.BroadcastAll(payload)
		case strings.HasPrefix(channel, "comments:item:"):
			var itemID uint
			if _, err := fmt.Sscanf(channel, "comments:item:%d", &itemID); err != nil {
				log.Printf("invalid comment channel: %s", channel)
				return
			}
			h.BroadcastItem(itemID, payload)
		case strings.HasPrefix(channel, "comments:user:"):
			var userID uint
			if _, err := fmt.Sscanf(channel, "comments:user:%d", &userID); err != nil {
				log.Printf("invalid comment channel: %s", channel)
				return
			}
			h.BroadcastUser(userID, payload)
		default:
			log.Printf("invalid comment channel: %s", channel)
		}
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	defer h.mu.Unlock()
	for itemID, clients := range h.items {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for item %d: %v", itemID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for item %d: %v", itemID, err)
			}
		}
	}
	h.items = make(map[uint]map[*Client]struct{})
	h.users = make(map[uint]map[*Client]struct{})
	h.totalConns = 0

	return nil
}
