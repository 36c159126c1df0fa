package ws

import (
	"context"
	"encoding/json"
	"sync"

	"garagelink/internal/realtime"
)

// Client is one websocket connection subscribed to a set of channels.
type Client struct {
	UserID   string
	Send     chan []byte
	Hub      *Hub
	channels []string
	mu       sync.Mutex
	closed   bool
}

func NewClient(userID string, channels []string) *Client {
	return &Client{
		UserID:   userID,
		Send:     make(chan []byte, 64),
		channels: channels,
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
	close(c.Send)
}

// trySend queues data unless the client is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub fans realtime envelopes out to the clients subscribed to a channel. It
// implements realtime.Publisher for single-instance deployments and
// realtime.Sink for the Redis relay.
type Hub struct {
	mu        sync.RWMutex
	byChannel map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byChannel: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	for _, ch := range c.channels {
		if h.byChannel[ch] == nil {
			h.byChannel[ch] = make(map[*Client]struct{})
		}
		h.byChannel[ch][c] = struct{}{}
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range c.channels {
		if m := h.byChannel[ch]; m != nil {
			delete(m, c)
			if len(m) == 0 {
				delete(h.byChannel, ch)
			}
		}
	}
}

func (h *Hub) Publish(_ context.Context, channel, event string, payload any) error {
	env, err := realtime.NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

// Deliver sends env to every subscriber of env.Channel. Slow clients miss
// messages rather than block the hub.
func (h *Hub) Deliver(env realtime.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	m := h.byChannel[env.Channel]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.trySend(data)
	}
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byChannel[channel])
}
