package bridge

import "errors"

var (
	// ErrTransport is returned when a message could not be handed to the
	// broker. Delivery to the device is never confirmed.
	ErrTransport = errors.New("bridge: transport failure")

	// ErrClosed is returned (wrapped in ErrTransport) after Destroy.
	ErrClosed = errors.New("bridge: closed")

	// ErrInvalidDeviceList is returned when a bridge/devices payload is not
	// a JSON array of devices.
	ErrInvalidDeviceList = errors.New("bridge: invalid device list")
)
