package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// clientQueueDepth bounds each client's outgoing event queue. Events beyond
// it are dropped for that client only.
const clientQueueDepth = 64

// writeTimeout bounds a single websocket write so one stuck client cannot
// pin its writer goroutine.
const writeTimeout = 5 * time.Second

// envelope is the wire form of an event sent to websocket clients.
type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Hub broadcasts pipeline events to connected websocket clients. It
// implements [Emitter]; Emit never blocks, per-client queues drop on
// overflow.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	dropped int64
}

type client struct {
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Emit marshals the event once and queues it to every connected client.
func (h *Hub) Emit(event string, payload any) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		h.log.Error("marshal event", "event", event, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events to it
// until the client disconnects or the request context ends. The connection
// is read-drained; clients are not expected to send anything.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept failed", "err", err)
		return
	}

	c := &client{send: make(chan []byte, clientQueueDepth)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("event client connected", "clients", n)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		h.log.Info("event client disconnected", "clients", n)
	}()

	// Discard inbound frames, surface closure via context cancellation.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

var _ Emitter = (*Hub)(nil)
