// Package livereload pushes reload notifications to browsers over
// websockets while the development server runs.
package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/isomorph/internal/logging"
)

const (
	// MessageReload asks the page to reload itself.
	MessageReload = "reload"

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
	readLimit  = 512
)

// Message is the JSON payload sent to clients.
type Message struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected browsers and fans messages out to them. Broadcasts
// never block: a client whose buffer is full misses the message.
type Hub struct {
	logger  logging.Logger
	origins []string

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithOrigins sets the host patterns allowed to connect cross-origin.
func WithOrigins(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a Hub.
func NewHub(opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:  logging.Discard(),
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithComponent("livereload")
	return h
}

// ServeHTTP upgrades the request and serves the connection until the client
// goes away or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)
	defer h.remove(c)

	h.logger.Debug(r.Context(), "Live reload client connected", "remote", r.RemoteAddr, "clients", h.Clients())
	h.serve(c)
}

func (h *Hub) serve(c *client) {
	// Clients never send anything; CloseRead handles control frames and
	// cancels ctx once the peer disconnects.
	ctx := c.conn.CloseRead(h.ctx)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		case <-ctx.Done():
			if h.ctx.Err() != nil {
				_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			} else {
				c.conn.CloseNow()
			}
			return
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client and returns how many accepted it.
func (h *Hub) Broadcast(msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal broadcast message")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Debug(h.ctx, "Dropping message for slow client")
		}
	}
	return delivered
}

// Reload tells every client to reload.
func (h *Hub) Reload(reason string) int {
	return h.Broadcast(Message{Type: MessageReload, Reason: reason})
}

// Shutdown disconnects every client and waits for their handlers to return.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.cancel()
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
