package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/homecore/internal/device"
)

type mockHistory struct {
	mu      sync.Mutex
	records []string
	err     error
}

func (m *mockHistory) RecordStateChange(_ context.Context, deviceID string, _, _ device.State, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, deviceID)
	return m.err
}

func (m *mockHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type mockMetrics struct {
	mu     sync.Mutex
	writes map[string]map[string]any
}

func (m *mockMetrics) WriteStateMetrics(_ context.Context, deviceID, _ string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writes == nil {
		m.writes = make(map[string]map[string]any)
	}
	m.writes[deviceID] = state
	return nil
}

type mockCache struct {
	mu    sync.Mutex
	state map[string]map[string]any
	kept  []string
}

func (m *mockCache) Set(_ context.Context, id string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]map[string]any)
	}
	m.state[id] = state
	return nil
}

func (m *mockCache) RemoveAllExcept(_ context.Context, keep []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kept = keep
	return nil, nil
}

func TestRecorder_FansOutStateChanges(t *testing.T) {
	history := &mockHistory{}
	metrics := &mockMetrics{}
	cache := &mockCache{}
	r := NewRecorder(WithHistory(history), WithMetrics(metrics), WithStateCache(cache))
	r.Start()

	r.HandleEvent(Event{Type: EventStateChange, DeviceID: "0xaaaa", State: device.State{"temperature": 21.5}})
	r.HandleEvent(Event{Type: EventMQTTMessage, Topic: "x"})
	r.HandleEvent(Event{Type: EventDevices, Devices: []device.Device{{IEEEAddress: "0xaaaa"}}})
	r.Close()

	if history.count() != 1 {
		t.Errorf("history records = %d, want 1", history.count())
	}
	if metrics.writes["0xaaaa"]["temperature"] != 21.5 {
		t.Errorf("metrics = %v", metrics.writes)
	}
	if cache.state["0xaaaa"]["temperature"] != 21.5 {
		t.Errorf("cache = %v", cache.state)
	}
	if len(cache.kept) != 1 || cache.kept[0] != "0xaaaa" {
		t.Errorf("cache prune kept %v", cache.kept)
	}
}

func TestRecorder_SinkErrorDoesNotStopOthers(t *testing.T) {
	history := &mockHistory{err: errors.New("disk full")}
	cache := &mockCache{}
	r := NewRecorder(WithHistory(history), WithStateCache(cache))
	r.Start()

	r.HandleEvent(Event{Type: EventStateChange, DeviceID: "a", State: device.State{"state": "ON"}})
	r.HandleEvent(Event{Type: EventStateChange, DeviceID: "b", State: device.State{"state": "OFF"}})
	r.Close()

	if history.count() != 2 {
		t.Errorf("history attempts = %d, want 2", history.count())
	}
	if len(cache.state) != 2 {
		t.Errorf("cache entries = %d, want 2", len(cache.state))
	}
}

func TestRecorder_NoSinks(t *testing.T) {
	r := NewRecorder()
	r.Start()
	r.HandleEvent(Event{Type: EventStateChange, DeviceID: "a"})
	r.Close()
	r.Close() // idempotent

	// Events after Close are dropped without panicking.
	r.HandleEvent(Event{Type: EventStateChange, DeviceID: "a"})
}

func TestRecorder_AsBridgeListener(t *testing.T) {
	history := &mockHistory{}
	r := NewRecorder(WithHistory(history))
	r.Start()

	b, client, _ := startBridge(t)
	b.Subscribe(r)
	client.deliver(t, "zigbee2mqtt/lamp", `{"state":"ON"}`)
	client.deliver(t, "zigbee2mqtt/lamp", `{"state":"OFF"}`)
	r.Close()

	if history.count() != 2 {
		t.Errorf("history records = %d, want 2", history.count())
	}
}
