package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // 404
//	}
var (
	// ErrDeviceNotFound is returned when no device has the given address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidState is returned when a payload is not a JSON object.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidOverrides is returned when the overrides file cannot be parsed.
	ErrInvalidOverrides = errors.New("device: invalid overrides")

	// ErrMissingDeviceID is returned by history operations given an empty id.
	ErrMissingDeviceID = errors.New("device: device id is required")
)
