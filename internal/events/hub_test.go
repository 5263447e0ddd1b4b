package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ontrak/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "hub-test-secret"

func signedToken(t *testing.T) string {
	t.Helper()
	claims := &wsClaims{
		UserID: primitive.NewObjectID().Hex(),
		Role:   string(domain.RoleTrainer),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// dialHub serves the hub over httptest and opens one client connection.
func dialHub(t *testing.T, hub *Hub, token string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForRegistration polls until the handshake goroutine has added the
// connection to the hub.
func waitForRegistration(t *testing.T, hub *Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := len(hub.connections)
		hub.mu.RUnlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("connection never registered with the hub")
}

func TestHandleWebSocketRejectsBadTokens(t *testing.T) {
	hub := NewHub(testSecret)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", hub.HandleWebSocket)
	server := httptest.NewServer(router)
	defer server.Close()

	for _, query := range []string{"", "?token=garbage"} {
		resp, err := http.Get(server.URL + "/ws" + query)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("query %q: status = %d, want 401", query, resp.StatusCode)
		}
	}
}

func TestPublishDeliversSnapshotToClient(t *testing.T) {
	hub := NewHub(testSecret)
	conn := dialHub(t, hub, signedToken(t))
	waitForRegistration(t, hub)

	hub.Publish(ScheduleUpdated(&domain.ScheduleSession{Title: "Onboarding Week — Day 1"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != EventScheduleUpdated {
		t.Errorf("event type = %q, want %q", event.Type, EventScheduleUpdated)
	}
	if event.ID == "" {
		t.Error("event ID missing")
	}
}

// Every schedule mutation publishes from its own request goroutine, so the
// hub must serialize writes to each connection; the websocket protocol
// allows only one writer at a time.
func TestPublishFromManyGoroutinesToOneConnection(t *testing.T) {
	hub := NewHub(testSecret)
	conn := dialHub(t, hub, signedToken(t))
	waitForRegistration(t, hub)

	received := make(chan struct{}, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case received <- struct{}{}:
			default:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.Publish(ScheduleUpdated(&domain.ScheduleSession{Title: "update"}))
			}
		}()
	}
	wg.Wait()

	// Delivery is lossy under pressure but must never be zero, and the
	// contending publishers must not have corrupted the connection.
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered to the connected client")
	}
}
