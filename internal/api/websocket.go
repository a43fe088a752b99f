package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeSnapshot    = "snapshot"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsSendBufferSize    = 256
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 10 * time.Second
)

// WSMessage is the envelope of every message sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsClient is one WebSocket connection. Outbound messages go through send,
// which only writePump drains.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration

	mu            sync.Mutex
	subscriptions map[string]struct{}
	closed        bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *wsClient {
	c := &wsClient{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, wsSendBufferSize),
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongWait:       time.Duration(cfg.PongTimeout) * time.Second,
		subscriptions:  make(map[string]struct{}),
	}
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	if c.pongWait <= 0 {
		c.pongWait = defaultPongWait
	}
	return c
}

// handleWebSocket upgrades the request and starts the client pumps.
// Clients receive nothing until they subscribe to a channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn, s.wsCfg)
	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

// enqueue queues data without blocking. It reports false when the client is
// closed or its queue is full.
func (c *wsClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the queue once so writePump sends a close frame and exits.
func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if c.maxMessageSize > 0 {
		c.conn.SetReadLimit(c.maxMessageSize)
	}
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pongWait))
	}
	extend() //nolint:errcheck // best-effort deadline
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // best-effort deadline
		c.handleMessage(data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(c.pongWait)) //nolint:errcheck // write error reported below
		return c.conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is closing
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(req, true)
	case WSTypeUnsubscribe:
		c.handleSubscribe(req, false)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

// handleSubscribe updates the subscription set. A request naming any unknown
// channel is rejected whole. New subscribers to a channel with current state
// get a snapshot message after the response.
func (c *wsClient) handleSubscribe(req wsRequest, subscribe bool) {
	var sub WSSubscribePayload
	if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
		c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid subscription payload"})
		return
	}
	channels, unknown := splitChannels(sub.Channels)
	if len(unknown) > 0 {
		c.reply(req.ID, WSTypeError, map[string]string{
			"message": "unknown channels: " + strings.Join(unknown, ", "),
		})
		return
	}

	var added []string
	c.mu.Lock()
	for _, ch := range channels {
		_, had := c.subscriptions[ch]
		if subscribe {
			c.subscriptions[ch] = struct{}{}
			if !had {
				added = append(added, ch)
			}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	if !subscribe {
		c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
		return
	}
	c.hub.logger.Debug("websocket client subscribed", "channels", channels)
	c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": channels})

	for _, ch := range added {
		if payload, ok := c.hub.snapshot(ch); ok {
			c.push(WSMessage{Type: WSTypeSnapshot, EventType: ch, Payload: payload})
		}
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	c.push(WSMessage{Type: msgType, ID: id, Payload: payload})
}

// push stamps and queues a single message for this client.
func (c *wsClient) push(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}
