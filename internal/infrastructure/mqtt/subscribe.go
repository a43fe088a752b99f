package mqtt

import (
	"fmt"
	"strings"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "zigbee2mqtt/+/availability"
//   - # (multi-level):  "zigbee2mqtt/#"
//
// Subscriptions are tracked and restored after a reconnect. Subscribing to
// the same topic again replaces its handler.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription. In-flight messages may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if err := validateTopic(topic); err != nil {
		return err
	}

	c.forget(topic)

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// HasSubscription checks if a subscription exists for the exact topic string.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}

// validateTopic rejects empty topics and malformed wildcards.
// '#' must be the last level and '+' must occupy a whole level.
func validateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q", ErrInvalidWildcard, topic)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q", ErrInvalidWildcard, topic)
		}
	}
	return nil
}
