package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 32
)

// upgrader accepts any origin. The feed is read-only and carries no
// credentials, so cross-origin dashboards may subscribe directly.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans pipeline progress events out to websocket subscribers
// ⭐ SSOT: ライブ配信の購読管理はこの構造体のみ
//
// The runner publishes through the ProgressSink interface; each
// subscriber gets a buffered channel and a writer goroutine. A
// subscriber that cannot keep up is dropped rather than allowed to
// stall the pipeline.
type Hub struct {
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan contracts.ProgressEvent
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:  log.WithComponent("api.hub"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish sends the event to every connected subscriber. It never
// blocks the caller.
func (h *Hub) Publish(ev contracts.ProgressEvent) {
	h.mu.RLock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket subscriber")
		h.remove(c)
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection
// GET /api/live
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan contracts.ProgressEvent, wsSendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Websocket subscriber connected")

	go c.writeLoop(h)
	go c.readLoop(h)
}

// remove unregisters the client. Closing the send channel stops the
// write loop, which closes the connection and in turn unblocks the
// read loop. Safe to call more than once.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *wsClient) writeLoop(h *Hub) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames. The feed is one-way, but reading
// is required to process pong frames and detect a closed peer.
func (c *wsClient) readLoop(h *Hub) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
