package bridge

import (
	"time"

	"github.com/nerrad567/homecore/internal/device"
)

// EventType names the kind of Event.
type EventType string

// Event types.
const (
	// EventDevices carries the new registry after an announcement.
	EventDevices EventType = "devices"

	// EventStateChange carries the merged state and the pre-merge snapshot.
	EventStateChange EventType = "state_change"

	// EventBridgeState carries the zigbee2mqtt liveness status.
	EventBridgeState EventType = "bridge_state"

	// EventMQTTMessage carries any message the bridge does not interpret.
	EventMQTTMessage EventType = "mqtt_message"

	// EventConfigChange is emitted when display overrides are replaced.
	EventConfigChange EventType = "config_change"
)

// Event is one notification from the Bridge. Which fields are set depends
// on Type. State, Prev, Devices and Overrides are snapshots detached from
// the bridge; they are shared between listeners, which must not modify them.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	// devices
	Devices []device.Device `json:"devices,omitempty"`

	// state_change
	DeviceID     string       `json:"device_id,omitempty"`
	FriendlyName string       `json:"friendly_name,omitempty"`
	State        device.State `json:"state,omitempty"`
	Prev         device.State `json:"prev,omitempty"`

	// bridge_state
	BridgeState string `json:"bridge_state,omitempty"`

	// mqtt_message
	Topic   string `json:"topic,omitempty"`
	Payload []byte `json:"payload,omitempty"`

	// config_change
	Overrides device.Overrides `json:"overrides,omitempty"`
}

// Listener receives bridge events.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleEvent calls f(ev).
func (f ListenerFunc) HandleEvent(ev Event) { f(ev) }
