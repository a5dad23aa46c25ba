package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"prediction-market-amm/internal/domain"
)

// ErrClientClosed is returned by operations on a closed Client.
var ErrClientClosed = errors.New("relay client closed")

// ClientConfig configures Client behavior.
type ClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// AckTimeout bounds the wait for a subscription acknowledgement.
	AckTimeout time.Duration
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		AckTimeout:        10 * time.Second,
	}
}

// Client follows a relay endpoint and reconnects with backoff when the
// connection drops, re-subscribing to the markets it had.
type Client struct {
	endpoint string
	config   ClientConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	markets   map[string]struct{}
	marketsMu sync.Mutex

	acks   chan []string
	events chan *domain.Event

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// Dial connects to endpoint (ws://host/ws).
func Dial(ctx context.Context, endpoint string, config *ClientConfig) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		markets:  make(map[string]struct{}),
		acks:     make(chan []string, 1),
		events:   make(chan *domain.Event, 1024),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// Events returns the stream of received events. It is closed by Close.
func (c *Client) Events() <-chan *domain.Event {
	return c.events
}

// Subscribe adds markets and waits for the server's acknowledgement.
func (c *Client) Subscribe(ctx context.Context, markets ...string) error {
	c.marketsMu.Lock()
	for _, m := range markets {
		c.markets[m] = struct{}{}
	}
	c.marketsMu.Unlock()

	return c.request(ctx, request{Action: actionSubscribe, Markets: markets})
}

// Unsubscribe removes markets and waits for the acknowledgement.
func (c *Client) Unsubscribe(ctx context.Context, markets ...string) error {
	c.marketsMu.Lock()
	for _, m := range markets {
		delete(c.markets, m)
	}
	c.marketsMu.Unlock()

	return c.request(ctx, request{Action: actionUnsubscribe, Markets: markets})
}

func (c *Client) request(ctx context.Context, req request) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	// drain a stale ack
	select {
	case <-c.acks:
	default:
	}

	if err := c.write(req); err != nil {
		return err
	}

	timer := time.NewTimer(c.config.AckTimeout)
	defer timer.Stop()

	select {
	case <-c.acks:
		return nil
	case <-timer.C:
		return fmt.Errorf("%s ack timeout after %s", req.Action, c.config.AckTimeout)
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write %T: %w", v, err)
	}
	return nil
}

// Close closes the connection and the Events channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.events)
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(conn, reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(data)
	}
}

// reconnect replaces broken with a fresh connection and restores subscriptions.
func (c *Client) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn == broken {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		return
	}
	if c.closed.Load() {
		c.connMu.Lock()
		c.conn.Close()
		c.connMu.Unlock()
		return
	}

	c.marketsMu.Lock()
	markets := make([]string, 0, len(c.markets))
	for m := range c.markets {
		markets = append(markets, m)
	}
	c.marketsMu.Unlock()
	sort.Strings(markets)

	if len(markets) > 0 {
		_ = c.write(request{Action: actionSubscribe, Markets: markets})
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case typeEvent:
		if msg.Event == nil {
			return
		}
		select {
		case c.events <- msg.Event:
		case <-c.done:
		}
	case typeSubscribed, typeError:
		select {
		case c.acks <- msg.Markets:
		default:
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				// a failed ping surfaces as a read error
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}
