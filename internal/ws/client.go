package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/saffron-pos/api/internal/auth"
	"github.com/saffron-pos/api/internal/events"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is checked via the JWT
	},
}

// Client is a single WebSocket subscription. A client may narrow what it
// receives to some collections and to one dining table.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	log          *zap.Logger
	restaurantID uuid.UUID
	collections  map[string]bool
	tableID      *uuid.UUID
	send         chan []byte
}

func (c *Client) wants(change events.Change) bool {
	if len(c.collections) > 0 && !c.collections[change.Collection] {
		return false
	}
	if c.tableID == nil {
		return true
	}
	if change.TableID != nil && *change.TableID == *c.tableID {
		return true
	}
	return change.Collection == events.CollectionTables && change.RowID == *c.tableID
}

// ReadPump only watches for disconnects; clients never send data.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read", zap.Error(err))
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler serves change subscriptions.
// Endpoint: WS /ws/restaurants/{rid}/changes?token=JWT[&collections=orders,dining_tables][&table=UUID]
type Handler struct {
	hub       *Hub
	jwtSecret string
	sessions  auth.SessionStore
	log       *zap.Logger
}

func NewHandler(hub *Hub, jwtSecret string, sessions auth.SessionStore, log *zap.Logger) *Handler {
	return &Handler{hub: hub, jwtSecret: jwtSecret, sessions: sessions, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(h.jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if h.sessions != nil {
		if _, err := h.sessions.Get(r.Context(), claims.SessionID()); err != nil {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
	}

	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		http.Error(w, "invalid restaurant id", http.StatusBadRequest)
		return
	}
	if claims.RestaurantID != restaurantID {
		http.Error(w, "restaurant access denied", http.StatusForbidden)
		return
	}

	var tableID *uuid.UUID
	if s := r.URL.Query().Get("table"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}
		tableID = &id
	}

	collections := make(map[string]bool)
	for _, c := range strings.Split(r.URL.Query().Get("collections"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			collections[c] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &Client{
		hub:          h.hub,
		conn:         conn,
		log:          h.log,
		restaurantID: restaurantID,
		collections:  collections,
		tableID:      tableID,
		send:         make(chan []byte, 256),
	}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
