package mqtt

import "strings"

// zigbee2mqtt topic suffixes.
const (
	segmentBridge  = "bridge"
	segmentDevices = "devices"
	segmentState   = "state"
	segmentSet     = "set"
	segmentGet     = "get"
)

// Topics builds zigbee2mqtt topics under a base topic.
//
//	t := mqtt.Topics{Base: "zigbee2mqtt"}
//	t.Set("hall_lamp") // "zigbee2mqtt/hall_lamp/set"
type Topics struct {
	Base string
}

func (t Topics) base() string {
	return strings.TrimRight(t.Base, "/")
}

// BridgeDevices is the retained device list announcement.
//
// Example: zigbee2mqtt/bridge/devices
func (t Topics) BridgeDevices() string {
	return t.base() + "/" + segmentBridge + "/" + segmentDevices
}

// BridgeState is the bridge liveness feed.
//
// Example: zigbee2mqtt/bridge/state
func (t Topics) BridgeState() string {
	return t.base() + "/" + segmentBridge + "/" + segmentState
}

// Device is the per-device state topic.
//
// Example: zigbee2mqtt/hall_lamp
func (t Topics) Device(friendlyName string) string {
	return t.base() + "/" + friendlyName
}

// Set is the per-device command topic.
//
// Example: zigbee2mqtt/hall_lamp/set
func (t Topics) Set(friendlyName string) string {
	return t.Device(friendlyName) + "/" + segmentSet
}

// Get is the per-device state query topic.
//
// Example: zigbee2mqtt/hall_lamp/get
func (t Topics) Get(friendlyName string) string {
	return t.Device(friendlyName) + "/" + segmentGet
}

// All matches every topic under the base, including the base itself.
//
// Pattern: zigbee2mqtt/#
func (t Topics) All() string {
	return t.base() + "/#"
}

// Remainder returns the part of topic below the base, outside the bridge
// namespace.
//
// Example: zigbee2mqtt/kitchen/ceiling -> kitchen/ceiling
func (t Topics) Remainder(topic string) (string, bool) {
	prefix := t.base() + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	rest := topic[len(prefix):]
	if rest == "" || rest == segmentBridge || strings.HasPrefix(rest, segmentBridge+"/") {
		return "", false
	}
	return rest, true
}

// DeviceName returns the friendly name when topic is a per-device state
// topic exactly one level below the base. Slashed names need the device
// registry to tell them apart from command topics.
func (t Topics) DeviceName(topic string) (string, bool) {
	rest, ok := t.Remainder(topic)
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// AutomationFired is where automation firings are announced.
//
// Example: homecore/automation/evening-lights/fired
func AutomationFired(prefix, automationID string) string {
	return strings.TrimRight(prefix, "/") + "/" + automationID + "/fired"
}
