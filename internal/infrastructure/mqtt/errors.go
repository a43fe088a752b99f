package mqtt

import "errors"

// Connection errors.
var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: client not connected")
)

// Operation errors. The bridge wraps any of these in its own transport error.
var (
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)

// Argument errors, returned before anything reaches the broker.
var (
	ErrInvalidQoS      = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic    = errors.New("mqtt: topic cannot be empty")
	ErrInvalidWildcard = errors.New("mqtt: invalid wildcard placement")
)
