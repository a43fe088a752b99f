// Package bridge mirrors zigbee2mqtt device state from the MQTT bus.
//
// The Bridge subscribes under the zigbee2mqtt base topic, keeps the device
// registry (replaced wholesale on every bridge/devices announcement) and the
// per-device state map (shallow-merged on every state message), and turns
// the message stream into Events for Listeners such as the automation
// engine, the state Recorder and the WebSocket hub.
//
//	zigbee2mqtt ──MQTT──▶ Bridge ──Event──▶ Listener(s)
//	     ▲                  │
//	     └──── /set, /get ──┘
//
// # Ordering
//
// Events are delivered synchronously and in message arrival order. The
// map update and the listener calls for one message happen under a single
// dispatch lock, so a listener never observes state from a later message
// while handling an earlier one. Listeners must return quickly and must not
// call SetOverrides from HandleEvent.
//
// # Addressing
//
// Devices are keyed by IEEE address. Commands go to the friendly name the
// registry knows for that address; an id the registry does not know is
// used as the friendly name itself.
package bridge
