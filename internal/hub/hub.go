// Package hub fans emitted speech segments out to WebSocket subscribers.
//
// Each segment is delivered as two messages: a JSON text message carrying
// the [journal.Record] header, followed by a binary message with the samples
// as little-endian float32. Subscribers that pass ?samples=false receive
// headers only.
//
// Delivery never blocks the segmentation loop. Every client has a one-slot
// queue; a segment published while the slot is still occupied is dropped for
// that client and counted.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxseg/internal/journal"
	"github.com/MrWong99/voxseg/internal/observe"
	"github.com/MrWong99/voxseg/pkg/audio"
)

// writeTimeout bounds a single message write to a subscriber.
const writeTimeout = 5 * time.Second

// Message is one published segment.
type Message struct {
	Header  journal.Record
	Samples []float32
}

type client struct {
	queue   chan Message
	samples bool
}

// Option is a functional option for [New].
type Option func(*Hub)

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithOriginPatterns allows cross-origin browser subscribers matching the
// given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// Hub is an [http.Handler] that upgrades requests to WebSocket subscriptions.
// All methods are safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	done    chan struct{}

	origins []string
	metrics *observe.Metrics
}

// New returns an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues msg for every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.queue <- msg:
		default:
			h.metrics.FeedDropped.Add(ctx, 1)
		}
	}
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

// ServeHTTP implements [http.Handler].
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	samples := true
	if v := r.URL.Query().Get("samples"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid samples parameter", http.StatusBadRequest)
			return
		}
		samples = b
	}

	c := &client{queue: make(chan Message, 1), samples: samples}
	if !h.register(c) {
		http.Error(w, "segment feed closed", http.StatusServiceUnavailable)
		return
	}
	defer h.unregister(c)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("segment feed: accept failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	// Subscribers only listen; CloseRead handles their control frames and
	// cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(r.Context()).With("remote", r.RemoteAddr)
	log.Info("segment feed: client connected", "samples", samples)

	for {
		select {
		case <-ctx.Done():
			log.Info("segment feed: client disconnected")
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg := <-c.queue:
			if err := h.send(ctx, conn, c, msg); err != nil {
				log.Warn("segment feed: write failed", "err", err)
				return
			}
		}
	}
}

func (h *Hub) send(ctx context.Context, conn *websocket.Conn, c *client, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	header, err := json.Marshal(msg.Header)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, header); err != nil {
		return err
	}
	if !c.samples {
		return nil
	}
	return conn.Write(ctx, websocket.MessageBinary, audio.AppendFloat32LE(nil, msg.Samples))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.FeedClients.Add(context.Background(), 1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.metrics.FeedClients.Add(context.Background(), -1)
}
