// Package device holds the zigbee2mqtt device model shared by the bridge,
// the automation engine and the API.
//
// # Key Types
//
//   - Device: one entry of the bridge/devices announcement, keyed by its
//     IEEE address
//   - Expose: a capability description from the device definition; composite
//     exposes (light, switch, color_xy) carry nested Features
//   - State: the last-known property map of a device, built by shallow
//     merging every state message
//   - Overrides: operator supplied display names for devices and entities
//   - SQLiteStateHistoryRepository: local audit trail of state changes
//
// # State semantics
//
// A property missing from State was never reported. This is different from
// a property reported as false, zero or an empty string.
//
// # Usage
//
//	var devices []device.Device
//	if err := json.Unmarshal(payload, &devices); err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    props := device.ReadableProperties(d.Definition.Exposes)
//	    ...
//	}
package device
