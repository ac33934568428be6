package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains the set of connected dashboard clients and fans check-in
// events out to them. Redis pub/sub carries events across instances; the
// subscriber callback does the local fan-out once per instance, so clients
// never see the same scan twice.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	stopSub func()
}

// Publisher publishes feed events to Redis for cross-instance broadcast.
type Publisher interface {
	PublishFeedEvent(event string, payload []byte) error
}

// Subscriber subscribes to the feed channel and invokes handler for incoming events.
type Subscriber interface {
	SubscribeFeed(handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates the WebSocket hub and starts the feed subscription.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
	}
	if sub != nil {
		cancel, err := sub.SubscribeFeed(func(event string, payload []byte) {
			h.broadcast(event, json.RawMessage(payload))
		})
		if err != nil {
			// without the subscription Redis-published events would never
			// reach local clients, so fall back to local-only fan-out
			h.logger.Warn("feed subscribe failed, falling back to local fan-out", zap.Error(err))
			h.pub = nil
		} else {
			h.stopSub = cancel
		}
	}
	return h
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client connected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client disconnected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// broadcast sends a message to all local clients.
func (h *Hub) broadcast(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish sends an event to every connected dashboard on every instance.
// With Redis the local fan-out happens in the subscriber callback; without
// it, directly.
func (h *Hub) Publish(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		if err := h.pub.PublishFeedEvent(event, data); err != nil {
			h.logger.Warn("feed publish failed, local fan-out only", zap.Error(err))
			h.broadcast(event, json.RawMessage(data))
		}
		return
	}
	h.broadcast(event, json.RawMessage(data))
}

// ClientCount returns the number of connected clients on this instance.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the feed subscription.
func (h *Hub) Close() {
	if h.stopSub != nil {
		h.stopSub()
	}
}
