package events

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sendBufferSize bounds the per-connection outbound queue. A consumer that
// falls further behind loses events; payloads are complete-state snapshots,
// so the next delivery catches it up.
const sendBufferSize = 16

// wsClient pairs a connection with its outbound queue. All writes to the
// connection go through writePump — gorilla/websocket supports at most one
// concurrent writer per connection.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump is the connection's single writer. It exits when the send
// channel is closed by unregister or when a write fails; the read loop
// notices the dead connection and unregisters it.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Hub is an in-process WebSocket fan-out implementing Publisher. Every
// connected client receives every event; duplicate or out-of-order delivery
// is acceptable because payloads are complete-state snapshots.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*wsClient // keyed by user ID (hex)
	jwtSecret   []byte
}

// NewHub creates a hub that authenticates connections with the given JWT secret.
func NewHub(jwtSecret string) *Hub {
	return &Hub{
		connections: make(map[string][]*wsClient),
		jwtSecret:   []byte(jwtSecret),
	}
}

// wsClaims mirrors the claims minted by the auth service.
type wsClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// HandleWebSocket upgrades an authenticated request to a WebSocket
// connection. The token travels as a query parameter because browser
// WebSocket clients cannot set an Authorization header.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims := &wsClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARN: WebSocket upgrade failed: %v", err)
		return
	}

	client := h.register(claims.UserID, conn)

	// Keep the connection alive; drop it on the first read error.
	go func() {
		defer h.unregister(claims.UserID, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) register(userID string, conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.connections[userID] = append(h.connections[userID], client)
	total := len(h.connections[userID])
	h.mu.Unlock()

	go client.writePump()
	log.Printf("WebSocket connected: user %s (total: %d)", userID, total)
	return client
}

func (h *Hub) unregister(userID string, client *wsClient) {
	h.mu.Lock()
	clients := h.connections[userID]
	for i, c := range clients {
		if c == client {
			h.connections[userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
	}
	h.mu.Unlock()

	// Publish holds the read lock while enqueueing, so once the client is out
	// of the map and the write lock is released nothing can send here again.
	close(client.send)
	log.Printf("WebSocket disconnected: user %s", userID)
}

// Publish fans the event out to every connected client. Enqueueing is
// non-blocking: a client whose queue is full misses this event instead of
// stalling the mutation path.
func (h *Hub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("WARN: failed to marshal event %s: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.connections {
		for _, client := range clients {
			select {
			case client.send <- data:
			default:
			}
		}
	}
}
