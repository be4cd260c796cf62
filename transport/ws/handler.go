// Package ws serves the real-time event channel over WebSocket.
//
// Each connection gets one read goroutine feeding the router and one write goroutine
// draining its outbox. Whatever ends the connection first, teardown runs exactly once.
package ws

import (
	"chat-live/contract"
	"chat-live/domain"
	"chat-live/domain/event"
	"chat-live/sink"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Config struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxFrameSize   int64
	BufferSize     int
	AllowedOrigins []string
}

// InboundRouter receives every frame read from a connection.
type InboundRouter interface {
	Handle(ctx context.Context, source domain.ConnectionID, f event.Frame)
}

type Handler struct {
	ctx      context.Context
	log      *slog.Logger
	cfg      Config
	registry contract.IRegistry
	router   InboundRouter
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

const (
	defaultPingInterval = 54 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultBufferSize   = 64
)

// NewHandler builds the upgrade handler. Every connection is closed once ctx is done.
func NewHandler(ctx context.Context, log *slog.Logger, cfg Config, registry contract.IRegistry, router InboundRouter) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	h := &Handler{
		ctx:      ctx,
		log:      log,
		cfg:      cfg,
		registry: registry,
		router:   router,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts clients without an Origin header (non-browser) and any listed origin.
// An empty list or "*" accepts everyone.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 || lo.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(h.cfg.AllowedOrigins, origin)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error
		h.log.Debug("WebSocket upgrade refused", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()

	id := domain.ConnectionID(uuid.NewString())
	ctx, cancel := context.WithCancel(h.ctx)
	c := &connection{
		id:     id,
		log:    h.log.With("conn_id", id),
		cfg:    h.cfg,
		ws:     ws,
		outbox: sink.NewConnectionSink(h.log, id, h.cfg.BufferSize),
		cancel: cancel,
	}
	c.release = func() { h.registry.Unregister(id) }

	h.registry.Connect(id, c.outbox)
	c.log.Info("Connection opened", "remote", r.RemoteAddr)

	go c.writeLoop(ctx)
	c.readLoop(ctx, h.router)
	c.teardown()
}

// Wait blocks until every connection handler has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

type connection struct {
	id      domain.ConnectionID
	log     *slog.Logger
	cfg     Config
	ws      *websocket.Conn
	outbox  *sink.ConnectionSink
	cancel  context.CancelFunc
	release func()
	once    sync.Once
}

func (c *connection) teardown() {
	c.once.Do(func() {
		c.cancel()
		c.release()
		c.outbox.Close()
		if err := c.ws.Close(); err != nil {
			c.log.Debug("Closing socket", "error", err)
		}
		c.log.Info("Connection closed")
	})
}

func (c *connection) readLoop(ctx context.Context, router InboundRouter) {
	if c.cfg.MaxFrameSize > 0 {
		c.ws.SetReadLimit(c.cfg.MaxFrameSize)
	}
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("Connection lost", "error", err)
			}
			return
		}
		var f event.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug("Dropping malformed frame", "error", err)
			continue
		}
		router.Handle(ctx, c.id, f)
	}
}

func (c *connection) extendReadDeadline() {
	if c.cfg.PongWait <= 0 {
		return
	}
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.log.Debug("Unable to set read deadline", "error", err)
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	defer c.teardown()

	for {
		select {
		case <-ctx.Done():
			c.writeClose(websocket.CloseGoingAway, "server shutting down")
			return
		case <-c.outbox.Done():
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("Closing slow consumer")
			c.writeClose(websocket.ClosePolicyViolation, "slow consumer")
			return
		case <-c.outbox.Ready():
			for _, out := range c.outbox.Drain() {
				if err := c.write(websocket.TextMessage, out.Body); err != nil {
					c.log.Debug("Write failed", "kind", out.Kind, "error", err)
					return
				}
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (c *connection) write(messageType int, data []byte) error {
	if c.cfg.WriteWait > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(messageType, data)
}

func (c *connection) writeClose(code int, reason string) {
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
