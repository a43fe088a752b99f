package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
)

// Bridge liveness values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// defaultQoS is used for every subscription and command.
const defaultQoS byte = 1

// Client is the part of the MQTT client the bridge uses.
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the structured logger the bridge writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge mirrors zigbee2mqtt devices and their state.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - mu guards the maps; dispatchMu serialises message handling and event
//     delivery so listeners see events in arrival order.
type Bridge struct {
	client Client
	topics mqtt.Topics
	logger Logger
	now    func() time.Time

	mu          sync.RWMutex
	devices     map[string]device.Device // by IEEE address
	order       []string                 // addresses in announcement order
	byName      map[string]string        // friendly name -> IEEE address
	states      map[string]device.State  // by IEEE address
	overrides   device.Overrides
	bridgeState string
	listeners   map[int]Listener
	nextID      int
	closed      bool
	subscribed  []string

	dispatchMu  sync.Mutex
	destroyOnce sync.Once
}

// New creates a bridge over client. Call Start to subscribe.
//
// Parameters:
//   - client: broker connection (normally *mqtt.Client)
//   - cfg: bridge section of config.yaml (base topic)
//   - logger: structured logger; nil discards output
//
// Returns:
//   - *Bridge: idle until Start, safe for concurrent use
func New(client Client, cfg config.BridgeConfig, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		client:    client,
		topics:    mqtt.Topics{Base: cfg.BaseTopic},
		logger:    logger,
		now:       time.Now,
		devices:   make(map[string]device.Device),
		byName:    make(map[string]string),
		states:    make(map[string]device.State),
		overrides: device.Overrides{},
		listeners: make(map[int]Listener),
	}
}

// Start subscribes to the device list, the liveness feed and every topic
// under the base. The MQTT client restores these after a reconnect.
func (b *Bridge) Start(_ context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: %w", ErrTransport, ErrClosed)
	}

	// One wildcard subscription covers devices, liveness and state, so a
	// single ordered handler sees every message.
	topic := b.topics.All()
	if err := b.client.Subscribe(topic, defaultQoS, b.handleMessage); err != nil {
		return fmt.Errorf("%w: subscribing to %s: %w", ErrTransport, topic, err)
	}

	b.mu.Lock()
	b.subscribed = append(b.subscribed, topic)
	b.mu.Unlock()

	b.logger.Info("bridge started", "base_topic", b.topics.Base)
	return nil
}

// Destroy unsubscribes and stops event emission. Idempotent. The MQTT
// connection itself is closed by its owner.
func (b *Bridge) Destroy() {
	b.destroyOnce.Do(func() {
		b.dispatchMu.Lock()
		defer b.dispatchMu.Unlock()

		b.mu.Lock()
		b.closed = true
		topics := b.subscribed
		b.subscribed = nil
		b.listeners = make(map[int]Listener)
		b.mu.Unlock()

		for _, topic := range topics {
			if err := b.client.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
				b.logger.Warn("bridge unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.logger.Info("bridge stopped")
	})
}

// Subscribe registers a listener and returns a function that removes it.
func (b *Bridge) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// ─── Inbound ────────────────────────────────────────────────────────────────

// handleMessage routes one MQTT message. It runs on the client's ordered
// delivery goroutine.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}

	switch topic {
	case b.topics.BridgeDevices():
		return b.handleDeviceList(payload)
	case b.topics.BridgeState():
		b.handleLiveness(payload)
		return nil
	}

	if name, ok := b.deviceName(topic); ok {
		if update, err := device.ParseState(payload); err == nil {
			b.handleState(name, update)
			return nil
		}
	}

	b.emit(Event{
		Type:    EventMQTTMessage,
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

func (b *Bridge) handleDeviceList(payload []byte) error {
	var list []device.Device
	if err := json.Unmarshal(payload, &list); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDeviceList, err)
	}

	devices := make(map[string]device.Device, len(list))
	byName := make(map[string]string, len(list))
	order := make([]string, 0, len(list))
	for _, d := range list {
		if d.IEEEAddress == "" {
			continue
		}
		if _, dup := devices[d.IEEEAddress]; !dup {
			order = append(order, d.IEEEAddress)
		}
		devices[d.IEEEAddress] = d
		if d.FriendlyName != "" {
			byName[d.FriendlyName] = d.IEEEAddress
		}
	}

	b.mu.Lock()
	b.devices = devices
	b.byName = byName
	b.order = order
	b.adoptNamedStates()
	b.mu.Unlock()

	b.logger.Info("device list updated", "devices", len(order))
	b.emit(Event{Type: EventDevices, Devices: b.Devices()})
	return nil
}

// adoptNamedStates moves state stored under a friendly name, received
// before the device was known, to the device's IEEE address. Properties
// already held under the address win. Callers hold mu.
func (b *Bridge) adoptNamedStates() {
	for name, id := range b.byName {
		if name == id {
			continue
		}
		early, ok := b.states[name]
		if !ok {
			continue
		}
		if current, ok := b.states[id]; ok {
			early.Merge(current)
		}
		b.states[id] = early
		delete(b.states, name)
	}
}

// deviceName returns the friendly name addressed by a device state topic.
// A registered name may contain slashes; unknown names are limited to one
// level below the base.
func (b *Bridge) deviceName(topic string) (string, bool) {
	if rest, ok := b.topics.Remainder(topic); ok {
		b.mu.RLock()
		_, known := b.byName[rest]
		b.mu.RUnlock()
		if known {
			return rest, true
		}
	}
	return b.topics.DeviceName(topic)
}

// handleLiveness accepts both "online" and {"state":"online"}.
func (b *Bridge) handleLiveness(payload []byte) {
	status := strings.TrimSpace(string(payload))
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		var msg struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(payload, &msg); err == nil {
			status = msg.State
		}
	}

	b.mu.Lock()
	b.bridgeState = status
	b.mu.Unlock()

	b.logger.Info("zigbee2mqtt bridge state", "state", status)
	b.emit(Event{Type: EventBridgeState, BridgeState: status})
}

func (b *Bridge) handleState(name string, update device.State) {
	b.mu.Lock()
	id, known := b.byName[name]
	if !known {
		id = name
	}
	current, ok := b.states[id]
	if !ok {
		current = device.State{}
		b.states[id] = current
	}
	prev := current.DeepCopy()
	current.Merge(update)
	state := current.DeepCopy()
	b.mu.Unlock()

	b.logger.Debug("device state", "device_id", id, "friendly_name", name, "keys", len(update))
	b.emit(Event{
		Type:         EventStateChange,
		DeviceID:     id,
		FriendlyName: name,
		State:        state,
		Prev:         prev,
	})
}

// emit delivers ev to every listener. Callers hold dispatchMu.
func (b *Bridge) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		b.deliver(l, ev)
	}
}

// deliver isolates listeners from each other's panics.
func (b *Bridge) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bridge listener panic recovered", "event", ev.Type, "panic", r)
		}
	}()
	l.HandleEvent(ev)
}

// ─── Outbound ───────────────────────────────────────────────────────────────

// SetDeviceState sends payload to <base>/<friendly>/set. A nil error only
// means the broker accepted the message.
func (b *Bridge) SetDeviceState(_ context.Context, deviceID string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding command for %s: %w", deviceID, err)
	}

	b.mu.RLock()
	closed := b.closed
	name := b.friendlyNameLocked(deviceID)
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: %w", ErrTransport, ErrClosed)
	}

	topic := b.topics.Set(name)
	if err := b.client.Publish(topic, data, defaultQoS, false); err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", ErrTransport, topic, err)
	}
	b.logger.Debug("device command sent", "device_id", deviceID, "topic", topic)
	return nil
}

// RefreshStates asks every non-coordinator device for its readable
// properties through /get. Failures for single devices are collected and
// returned together after all devices were tried.
func (b *Bridge) RefreshStates(ctx context.Context) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("%w: %w", ErrTransport, ErrClosed)
	}
	type query struct {
		topic   string
		payload []byte
	}
	queries := make([]query, 0, len(b.order))
	for _, id := range b.order {
		d := b.devices[id]
		if d.IsCoordinator() || d.Disabled {
			continue
		}
		data, err := json.Marshal(refreshPayload(d))
		if err != nil {
			continue
		}
		queries = append(queries, query{topic: b.topics.Get(b.friendlyNameLocked(id)), payload: data})
	}
	b.mu.RUnlock()

	var errs []error
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.client.Publish(q.topic, q.payload, defaultQoS, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q.topic, err))
		}
	}

	b.logger.Info("device state refresh requested", "devices", len(queries), "failed", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrTransport, errors.Join(errs...))
	}
	return nil
}

// refreshPayload lists the readable properties with empty values, or
// {"state":""} when the definition names none.
func refreshPayload(d device.Device) map[string]string {
	props := device.ReadableProperties(d.Definition.Exposes)
	if len(props) == 0 {
		return map[string]string{"state": ""}
	}
	payload := make(map[string]string, len(props))
	for _, p := range props {
		payload[p] = ""
	}
	return payload
}

// Publish sends a raw message, not retained.
func (b *Bridge) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: %w", ErrTransport, ErrClosed)
	}
	if err := b.client.Publish(topic, payload, defaultQoS, false); err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", ErrTransport, topic, err)
	}
	return nil
}

// SetOverrides replaces the display overrides and emits config_change.
func (b *Bridge) SetOverrides(o device.Overrides) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	b.overrides = o.Clone()
	b.mu.Unlock()

	b.emit(Event{Type: EventConfigChange, Overrides: o.Clone()})
}

// ─── Read access ────────────────────────────────────────────────────────────

// Devices returns copies of all known devices in announcement order.
func (b *Bridge) Devices() []device.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]device.Device, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.devices[id].DeepCopy())
	}
	return out
}

// Device returns a copy of one device.
func (b *Bridge) Device(id string) (device.Device, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.devices[id]
	if !ok {
		return device.Device{}, false
	}
	return d.DeepCopy(), true
}

// States returns copies of every device state, keyed by device id.
func (b *Bridge) States() map[string]device.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]device.State, len(b.states))
	for id, s := range b.states {
		out[id] = s.DeepCopy()
	}
	return out
}

// State returns a copy of one device state. ok is false when the device has
// never reported.
func (b *Bridge) State(id string) (device.State, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.states[id]
	if !ok {
		return nil, false
	}
	return s.DeepCopy(), true
}

// Overrides returns a copy of the current display overrides.
func (b *Bridge) Overrides() device.Overrides {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.overrides.Clone()
}

// BridgeState returns the last liveness status, or "" before the first one.
func (b *Bridge) BridgeState() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bridgeState
}

// FriendlyName returns the registry name for id, or id itself.
func (b *Bridge) FriendlyName(id string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.friendlyNameLocked(id)
}

// ResolveID maps a friendly name to its device id. Ids and unknown names
// are returned unchanged.
func (b *Bridge) ResolveID(nameOrID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.devices[nameOrID]; ok {
		return nameOrID
	}
	if id, ok := b.byName[nameOrID]; ok {
		return id
	}
	return nameOrID
}

func (b *Bridge) friendlyNameLocked(id string) string {
	if d, ok := b.devices[id]; ok && d.FriendlyName != "" {
		return d.FriendlyName
	}
	return id
}
