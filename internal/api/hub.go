package api

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/logging"
)

// Broadcast channels.
const (
	ChannelDeviceState     = "device.state_changed"
	ChannelDevices         = "devices"
	ChannelBridgeState     = "bridge.state"
	ChannelConfigChanged   = "config.changed"
	ChannelAutomationFired = "automation.fired"
)

var knownChannels = map[string]struct{}{
	ChannelDeviceState:     {},
	ChannelDevices:         {},
	ChannelBridgeState:     {},
	ChannelConfigChanged:   {},
	ChannelAutomationFired: {},
}

// SnapshotFunc returns the current value of a channel, sent to a client
// right after it subscribes. ok is false for event-only channels.
type SnapshotFunc func(channel string) (payload any, ok bool)

// Hub tracks WebSocket clients and fans channel events out to subscribers.
//
// Thread Safety: all methods are safe for concurrent use. The hub lock is
// never held while a client lock is taken.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	snap    SnapshotFunc
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// SetSnapshot installs the function that seeds new subscribers.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	h.snap = fn
	h.mu.Unlock()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister drops c and closes its send queue. Repeated calls are no-ops.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		c.closeSend()
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends payload as an event to every client subscribed to channel.
// Clients whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	var sent, dropped int
	for _, c := range h.snapshotClients() {
		if !c.isSubscribed(channel) {
			continue
		}
		if c.enqueue(data) {
			sent++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients too slow, event dropped", "channel", channel, "dropped", dropped)
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshotClients() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) snapshot(channel string) (any, bool) {
	h.mu.RLock()
	fn := h.snap
	h.mu.RUnlock()
	if fn == nil {
		return nil, false
	}
	return fn(channel)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.closeSend()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// splitChannels separates known channel names from unknown ones. Both
// results are sorted and deduplicated.
func splitChannels(channels []string) (known, unknown []string) {
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		if _, ok := knownChannels[ch]; ok {
			known = append(known, ch)
		} else {
			unknown = append(unknown, ch)
		}
	}
	sort.Strings(known)
	sort.Strings(unknown)
	return known, unknown
}
