package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"prediction-market-amm/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be below pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub tracks connected clients and their market subscriptions. It is an
// events.Sink: the engine publishes to it directly, or Run forwards events
// received from another instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log.With().Str("component", "relay").Logger(),
	}
}

// Publish queues each event for every client subscribed to its market.
// Slow clients whose buffer is full miss the event rather than stall the caller.
func (h *Hub) Publish(_ context.Context, events []*domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, e := range events {
		data, err := json.Marshal(message{Type: typeEvent, Event: e})
		if err != nil {
			return err
		}
		for c := range h.clients {
			if !c.subscribed(e.Market) {
				continue
			}
			select {
			case c.send <- data:
			default:
				h.log.Warn().Str("market", e.Market).Str("event_id", e.EventID).Msg("dropping event for slow client")
			}
		}
	}
	return nil
}

// Run forwards events from source (nil for none) until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context, source <-chan *domain.Event) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-source:
			if !ok {
				source = nil
				continue
			}
			_ = h.Publish(ctx, []*domain.Event{e})
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. Markets listed in
// the "market" query parameter are subscribed immediately.
// GET /ws?market=<address>&market=<address>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]struct{}),
	}
	for _, m := range r.URL.Query()["market"] {
		if m != "" {
			c.subs[m] = struct{}{}
		}
	}

	if !h.register(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debug().Int("clients", len(h.clients)).Msg("client connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Debug().Int("clients", len(h.clients)).Msg("client disconnected")
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// client is one WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]struct{}
}

func (c *client) subscribed(market string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subs[AllMarkets]; ok {
		return true
	}
	_, ok := c.subs[market]
	return ok
}

// apply updates subscriptions and returns the resulting set, sorted.
func (c *client) apply(req request) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range req.Markets {
		if m == "" {
			continue
		}
		if req.Action == actionSubscribe {
			c.subs[m] = struct{}{}
		} else {
			delete(c.subs, m)
		}
	}

	out := make([]string, 0, len(c.subs))
	for m := range c.subs {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// reply queues a control message. Dropped when the buffer is full.
func (c *client) reply(msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Msg("unexpected close")
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil ||
			(req.Action != actionSubscribe && req.Action != actionUnsubscribe) {
			c.reply(message{Type: typeError, Error: "expected {\"action\":\"subscribe|unsubscribe\",\"markets\":[...]}"})
			continue
		}
		c.reply(message{Type: typeSubscribed, Markets: c.apply(req)})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
