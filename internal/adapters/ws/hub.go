// Package ws is the telemetry transport. Browsers stream behavioral events
// over a WebSocket; each text frame carries one envelope. The channel is
// inbound only: nothing is written back except pings and the close frame.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

const (
	defaultMaxClients = 10_000
	defaultReadLimit  = 64 << 10
	defaultPongWait   = 60 * time.Second
	writeWait         = 10 * time.Second
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// Ingestor accepts decoded telemetry envelopes.
type Ingestor interface {
	Ingest(ctx context.Context, env model.Envelope) error
}

// client is one telemetry connection. It carries no session state; every
// frame names its own session.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	// done is closed by the hub to make the write pump send a close frame.
	done chan struct{}
}

// Hub tracks telemetry connections and forwards their frames.
type Hub struct {
	ingestor Ingestor
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex

	ctx  context.Context
	done chan struct{} // closed when Run exits

	maxClients int
	readLimit  int64
	pongWait   time.Duration
	origins    map[string]struct{}

	received     atomic.Int64
	decodeErrors atomic.Int64
	rejected     atomic.Int64

	logger logger.Logger
}

// NewHub creates a hub that forwards envelopes to ingestor. Call Run before
// serving connections.
func NewHub(ingestor Ingestor, opts ...Option) *Hub {
	h := &Hub{
		ingestor:   ingestor,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		ctx:        context.Background(),
		done:       make(chan struct{}),
		maxClients: defaultMaxClients,
		readLimit:  defaultReadLimit,
		pongWait:   defaultPongWait,
		origins:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("ws")
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// Run is the hub's main loop. It returns when ctx is cancelled, after
// asking every connection to close.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	h.logger.Info(ctx, "telemetry hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.done)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.UpdateWebSocketClients(0)
			h.logger.Info(context.Background(), "telemetry hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.RecordWebSocketConnection()
			metrics.UpdateWebSocketClients(n)
			h.logger.Debug(ctx, "client connected", logger.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.done)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.UpdateWebSocketClients(n)
			h.logger.Debug(ctx, "client disconnected", logger.Int("clients", n))
		}
	}
}

// ServeHTTP upgrades the request and starts the connection pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if h.Clients() >= h.maxClients {
		metrics.RecordErrorByComponent("ws", "too_many_clients")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{hub: h, conn: conn, done: make(chan struct{})}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters.
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"clients":      int64(h.Clients()),
		"received":     h.received.Load(),
		"decodeErrors": h.decodeErrors.Load(),
		"rejected":     h.rejected.Load(),
	}
}

// Decode parses one telemetry frame. Every failure wraps
// model.ErrTransportDecode.
func Decode(frame []byte) (model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return model.Envelope{}, model.WrapKind("decode frame", model.ErrTransportDecode, err)
	}
	if err := env.Validate(); err != nil {
		return model.Envelope{}, model.WrapKind("decode frame", model.ErrTransportDecode, err)
	}
	return env, nil
}

func (h *Hub) runContext() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// handleFrame decodes and forwards one frame. Failures are logged and
// dropped; the sender is never told.
func (h *Hub) handleFrame(frame []byte) {
	ctx := h.runContext()
	h.received.Add(1)
	metrics.RecordEventReceived("ws")

	env, err := Decode(frame)
	if err != nil {
		h.decodeErrors.Add(1)
		metrics.RecordEventDecodeError()
		h.logger.Warn(ctx, "dropping malformed telemetry frame",
			logger.Int("bytes", len(frame)),
			logger.Error(err),
		)
		return
	}

	if err := h.ingestor.Ingest(ctx, env); err != nil {
		h.rejected.Add(1)
		fields := []logger.Field{
			logger.Int64("session_id", env.SessionID),
			logger.String("event_type", string(env.Event.Type)),
			logger.Error(err),
		}
		if errors.Is(err, model.ErrBackpressure) {
			h.logger.Warn(ctx, "telemetry dropped under backpressure", fields...)
			return
		}
		h.logger.Info(ctx, "telemetry rejected", fields...)
	}
}

// readPump reads frames until the connection fails or closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			// gorilla has already sent 1009 and the frame cannot be skipped,
			// so an oversized frame costs the sender its connection.
			if errors.Is(err, websocket.ErrReadLimit) {
				c.hub.decodeErrors.Add(1)
				metrics.RecordEventDecodeError()
				c.hub.logger.Warn(c.hub.runContext(), "telemetry frame over read limit; closing connection",
					logger.Int64("limit", c.hub.readLimit))
				return
			}
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Debug(c.hub.runContext(), "websocket read error", logger.Error(err))
			}
			return
		}
		// Any frame shows the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
		if kind != websocket.TextMessage {
			c.hub.handleFrame(nil)
			continue
		}
		c.hub.handleFrame(frame)
	}
}

// writePump sends pings and, once done is closed, the close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Debug(c.hub.runContext(), "websocket ping failed", logger.Error(err))
				return
			}
		}
	}
}
