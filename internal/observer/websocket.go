package observer

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// WebSocketHub fans events out to connected desktop-shell clients, one
// write goroutine per connection so a slow client cannot block the
// Manager's notify goroutines.
type WebSocketHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan models.Event
	logger  zerolog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewWebSocketHub builds an empty hub.
func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients: map[*websocket.Conn]chan models.Event{},
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

// ServeHTTP upgrades the connection and registers it until the client
// disconnects or the hub is told to drop it.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	out := make(chan models.Event, 64)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	go h.writeLoop(conn, out)
	h.readLoop(conn, out)
}

func (h *WebSocketHub) writeLoop(conn *websocket.Conn, out chan models.Event) {
	for e := range out {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames (this is a publish-only feed) and
// blocks until the client goes away, at which point it unregisters.
func (h *WebSocketHub) readLoop(conn *websocket.Conn, out chan models.Event) {
	defer h.drop(conn, out)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) drop(conn *websocket.Conn, out chan models.Event) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	close(out)
	_ = conn.Close()
}

// Observer returns an observer.Observer that forwards matching events to
// every connected client, non-blocking (a full client channel drops the
// event rather than stalling the whole bus).
func (h *WebSocketHub) Observer() *Observer {
	return &Observer{
		Name: "websocket_hub",
		OnEvent: func(e models.Event) {
			h.mu.Lock()
			defer h.mu.Unlock()
			for _, ch := range h.clients {
				select {
				case ch <- e:
				default:
				}
			}
		},
	}
}
