package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"portraitd/internal/events"
	"portraitd/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-origin requests, and any origin allowed by CORS.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if corsEnabled {
		for _, o := range corsAllowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// wsClient is one connected /events subscriber.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	once sync.Once
}

// Hub fans selected bus events out to websocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	unsubs  []func()
}

// NewHub subscribes to names on bus and relays them to every client.
func NewHub(bus events.Subscriber, names ...string) *Hub {
	h := &Hub{clients: make(map[string]*wsClient)}
	if bus != nil {
		for _, name := range names {
			h.unsubs = append(h.unsubs, bus.Subscribe(name, h.relay))
		}
	}
	return h
}

// Close detaches from the bus and disconnects every client.
func (h *Hub) Close() {
	for _, u := range h.unsubs {
		u()
	}
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()
	for _, c := range clients {
		c.stop()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) relay(ev events.Event) {
	data, err := json.Marshal(types.EventMessage{Type: ev.Name, Data: ev.Payload, Time: time.Now().Unix()})
	if err != nil {
		if zlog != nil {
			zlog.Error().Err(err).Str("event", ev.Name).Msg("marshal event")
		}
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client send buffer full, skip
			if zlog != nil {
				zlog.Warn().Str("client", c.id).Msg("websocket send buffer full")
			}
		}
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	if zlog != nil {
		zlog.Debug().Str("client", c.id).Int("total", n).Msg("websocket client connected")
	}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.stop()
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, 64), hub: h}
	h.register(c)
	go c.writePump()
	c.readPump()
}

// stop closes the send channel once; writePump then closes the connection.
func (c *wsClient) stop() {
	c.once.Do(func() { close(c.send) })
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (c *wsClient) readPump() {
	defer c.hub.unregister(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && zlog != nil {
				zlog.Debug().Err(err).Str("client", c.id).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}
