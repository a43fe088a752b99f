package cache

import "errors"

var (
	// ErrDisabled is returned by Connect when redis.enabled is false.
	ErrDisabled = errors.New("cache: disabled in configuration")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("cache: connection failed")
)
