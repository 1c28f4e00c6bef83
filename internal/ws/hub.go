package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/events"
)

// ErrHubStopped is returned by Publish once the hub's Run loop has exited.
var ErrHubStopped = errors.New("websocket hub stopped")

// Hub maintains the set of active clients and fans row changes out to them.
// It implements events.Publisher.
type Hub struct {
	// Registered clients by restaurant ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Change
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Change, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for rid, clients := range h.rooms {
			for client := range clients {
				close(client.send)
			}
			delete(h.rooms, rid)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.restaurantID] == nil {
				h.rooms[client.restaurantID] = make(map[*Client]bool)
			}
			h.rooms[client.restaurantID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case change := <-h.broadcast:
			message, err := json.Marshal(change)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.rooms[change.RestaurantID] {
				if !client.wants(change) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than block the hub.
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.restaurantID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.restaurantID)
	}
}

// Publish queues a change for delivery to the restaurant's subscribers.
func (h *Hub) Publish(ctx context.Context, c events.Change) error {
	select {
	case h.broadcast <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is a no-op; the hub stops when the context passed to Run is done.
func (h *Hub) Close() error {
	return nil
}

// ClientCount returns how many subscribers a restaurant has.
func (h *Hub) ClientCount(restaurantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[restaurantID])
}
