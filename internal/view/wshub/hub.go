// Package wshub pushes dashboard view events to browsers over websocket.
//
// A client receives the current frame snapshot on connect and then every
// event published on the bus. Clients that fall behind are disconnected
// rather than slowing the publisher down.
package wshub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"netprobe/internal/eventbus"
	logx "netprobe/pkg/logx"
)

// TypeSnapshot tags the first message sent to every client.
const TypeSnapshot = "snapshot"

type Options struct {
	// ClientBuffer is the number of events queued per client before it is
	// considered slow and dropped. Default 64.
	ClientBuffer int
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CheckOrigin overrides the upgrader origin check. Nil allows any origin.
	CheckOrigin func(r *http.Request) bool
}

type Hub struct {
	bus      eventbus.Bus
	snapshot func() any
	log      logx.Logger
	opt      Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	dropped uint64
}

type client struct {
	conn *websocket.Conn
	send chan eventbus.Event
	done chan struct{}
	once sync.Once
}

func (c *client) kick() { c.once.Do(func() { close(c.done) }) }

func New(bus eventbus.Bus, snapshot func() any, log logx.Logger, opt Options) *Hub {
	if opt.ClientBuffer <= 0 {
		opt.ClientBuffer = 64
	}
	if opt.PingInterval <= 0 {
		opt.PingInterval = 30 * time.Second
	}
	if opt.ReadTimeout <= 0 {
		opt.ReadTimeout = 60 * time.Second
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = 10 * time.Second
	}
	check := opt.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hub{
		bus:      bus,
		snapshot: snapshot,
		log:      log,
		opt:      opt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     check,
		},
		clients: map[*client]struct{}{},
	}
}

// Run forwards bus events to connected clients until ctx is done, then
// disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	ch, unsub := h.bus.Subscribe(256)
	defer unsub()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(e)
		}
	}
}

func (h *Hub) broadcast(e eventbus.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			delete(h.clients, c)
			h.dropped++
			c.kick()
			h.log.Debug("websocket client too slow; dropping", logx.Uint64("dropped", h.dropped))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.kick()
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped reports how many clients were disconnected for falling behind.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	c := &client{
		conn: conn,
		send: make(chan eventbus.Event, h.opt.ClientBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("websocket client connected", logx.String("remote", r.RemoteAddr), logx.Int("clients", n))

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.kick()
	h.log.Debug("websocket client disconnected", logx.String("remote", r.RemoteAddr))
}

// readLoop discards client messages; it only exists to process control
// frames and notice the peer going away.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opt.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opt.ReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read failed", logx.Err(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.opt.ReadTimeout))
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(h.opt.PingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	var snap any
	if h.snapshot != nil {
		snap = h.snapshot()
	}
	if err := h.write(c, eventbus.Event{Type: TypeSnapshot, Time: time.Now(), Data: snap}); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opt.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case e := <-c.send:
			if err := h.write(c, e); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opt.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Debug("websocket ping failed", logx.Err(err))
				return
			}
		}
	}
}

func (h *Hub) write(c *client, e eventbus.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.opt.WriteTimeout))
	if err := c.conn.WriteJSON(e); err != nil {
		h.log.Debug("websocket write failed", logx.String("type", e.Type), logx.Err(err))
		return err
	}
	return nil
}
