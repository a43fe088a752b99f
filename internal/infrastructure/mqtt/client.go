package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

// Client is homecore's broker connection. It tracks subscriptions so they
// survive reconnects and announces homecore's own liveness on the status
// topic.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Messages are delivered to handlers one at a time, in arrival order.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	// mu guards the fields below.
	mu           sync.RWMutex
	connected    bool
	connects     int
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client writes to.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the paho delivery goroutine and must not block for long:
// the next message is not delivered until the handler returns.
// A returned error is logged and does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first session. Auto-reconnect
// stays on for the life of the client.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.StatusTopic, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; callers may subscribe as
	// soon as Connect returns.
	c.setConnected(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	c.connects++
	reconnect := c.connects > 1
	callback := c.onConnect
	logger := c.logger
	c.mu.Unlock()

	restored := c.restoreSubscriptions()
	c.publishStatus(onlineStatus(c.cfg.Broker.ClientID))

	if reconnect && logger != nil {
		logger.Info("MQTT reconnected", "subscriptions", restored)
	}
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	callback := c.onDisconnect
	logger := c.logger
	c.mu.Unlock()

	if logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-issues every tracked subscription and returns how
// many the broker accepted.
func (c *Client) restoreSubscriptions() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	ok := 0
	for topic, sub := range c.subscriptions {
		token := c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
		if !token.WaitTimeout(defaultPublishTimeout) || token.Error() != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT resubscribe failed", "topic", topic, "error", token.Error())
			}
			continue
		}
		ok++
	}
	return ok
}

func (c *Client) publishStatus(payload []byte) {
	if c.cfg.StatusTopic == "" || payload == nil {
		return
	}
	c.client.Publish(c.cfg.StatusTopic, byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful offline status and disconnects. Closing a
// client that never connected is not an error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.cfg.StatusTopic != "" {
		token := c.client.Publish(c.cfg.StatusTopic, byte(c.cfg.QoS), true, offlineStatus(c.cfg.Broker.ClientID, reasonShutdown))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports whether the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client != nil && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// SetOnConnect sets a callback invoked on initial connect and on every
// reconnect, after subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for connection changes, handler errors and
// recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho. A panicking handler is
// logged and the delivery goroutine keeps running.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
