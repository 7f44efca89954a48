package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"adcert/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already restricted by the CORS layer in front of the API.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the frame pushed to connected clients.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
	At   time.Time              `json:"at"`
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	Role   string
	UserID string
}

// accepts reports whether an event owned by advertiserID may reach c.
// Staff receive everything; advertisers only their own submissions.
func (c *Client) accepts(advertiserID string) bool {
	if c.Role != roleAdvertiser {
		return true
	}
	return advertiserID != "" && c.UserID == advertiserID
}

const roleAdvertiser = "advertiser"

type message struct {
	advertiserID string
	payload      []byte
}

// Hub maintains the set of active clients and routes workflow events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the dispatch loop and returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.Info(ctx, "websocket client connected", slog.String("role", client.Role), slog.String("user_id", client.UserID))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				logging.Info(ctx, "websocket client disconnected", slog.String("role", client.Role))
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.accepts(msg.advertiserID) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues an event about a submission owned by advertiserID. Events
// with no owner reach staff only. Publish never blocks the caller: when the
// buffer is full the event is dropped and logged.
func (h *Hub) Publish(event, advertiserID string, data map[string]interface{}) {
	payload, err := json.Marshal(Event{Type: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		logging.Warn(context.Background(), "websocket event not encodable", slog.String("event", event), slog.Any("err", err))
		return
	}
	select {
	case h.broadcast <- message{advertiserID: advertiserID, payload: payload}:
	default:
		logging.Warn(context.Background(), "websocket broadcast buffer full, dropping event", slog.String("event", event))
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		// Fast track writing queued messages
		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains the connection so close frames are noticed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(context.Background(), "websocket read failed", slog.Any("err", err))
			}
			break
		}
	}
}

// ServeWs authenticates the token query param and upgrades the connection.
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	ctx := c.Request.Context()

	tokenString := c.Query("token")
	if tokenString == "" {
		logging.Warn(ctx, "websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		logging.Warn(ctx, "websocket connection rejected: invalid token", slog.Any("err", err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		logging.Warn(ctx, "websocket connection rejected: invalid claims")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		logging.Warn(ctx, "websocket connection rejected: missing subject")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	role, _ := claims["role"].(string)
	switch role {
	case roleAdvertiser, "reviewer", "admin":
	default:
		logging.Warn(ctx, "websocket connection rejected: unknown role", slog.String("role", role))
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(ctx, "websocket upgrade failed", slog.Any("err", err))
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), Role: role, UserID: userID}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
