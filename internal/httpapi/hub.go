package httpapi

import (
	"sync"

	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/power"
)

// Hub fans freshly computed records out to websocket subscribers. A
// subscriber whose buffer is full is dropped rather than slowing the loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
	buffer  int
	logger  zerolog.Logger
}

type subscriber struct {
	send chan power.Metrics
}

// NewHub builds a hub with a per-subscriber buffer of size buffer.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		buffer:  buffer,
		logger:  logger.With().Str("component", "stream").Logger(),
	}
}

// Broadcast implements service.Broadcaster. It never blocks.
func (h *Hub) Broadcast(m power.Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn().Msg("dropping slow stream subscriber")
		}
	}
}

// Clients reports the number of live subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) subscribe() *subscriber {
	c := &subscriber{send: make(chan power.Metrics, h.buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
