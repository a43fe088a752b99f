package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/homecore/internal/device"
)

const (
	recorderQueueSize = 256
	sinkTimeout       = 5 * time.Second
)

// HistoryStore persists state changes (device.SQLiteStateHistoryRepository).
type HistoryStore interface {
	RecordStateChange(ctx context.Context, deviceID string, state, prev device.State, source string) error
}

// MetricsWriter writes numeric state to a time-series store (influxdb.Client).
type MetricsWriter interface {
	WriteStateMetrics(ctx context.Context, deviceID, friendlyName string, state map[string]any) error
}

// StateCache keeps the latest state per device (cache.StateCache).
type StateCache interface {
	Set(ctx context.Context, id string, state map[string]any) error
	RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error)
}

// Recorder is a Listener that copies state changes to the optional sinks.
//
// HandleEvent only enqueues: sinks run on the recorder's own goroutine so a
// slow database or network never holds up the bridge. When the queue is
// full the event is dropped and logged. Sink errors are logged.
type Recorder struct {
	history HistoryStore
	metrics MetricsWriter
	cache   StateCache
	logger  Logger

	queue chan Event
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithHistory records every state change in h.
func WithHistory(h HistoryStore) RecorderOption {
	return func(r *Recorder) { r.history = h }
}

// WithMetrics writes numeric properties of every state change to m.
func WithMetrics(m MetricsWriter) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithStateCache mirrors the latest state of every device to c.
func WithStateCache(c StateCache) RecorderOption {
	return func(r *Recorder) { r.cache = c }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a recorder. Sinks left unset are skipped.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: noopLogger{},
		queue:  make(chan Event, recorderQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the worker. It stops when Close is called.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for ev := range r.queue {
			r.record(ev)
		}
	}()
}

// Close stops accepting events, drains the queue and waits for the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// HandleEvent implements Listener.
func (r *Recorder) HandleEvent(ev Event) {
	if ev.Type != EventStateChange && ev.Type != EventDevices {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("state recorder queue full, event dropped", "event", ev.Type, "device_id", ev.DeviceID)
	}
}

func (r *Recorder) record(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	switch ev.Type {
	case EventStateChange:
		r.recordState(ctx, ev)
	case EventDevices:
		r.pruneCache(ctx, ev.Devices)
	}
}

func (r *Recorder) recordState(ctx context.Context, ev Event) {
	if r.history != nil {
		if err := r.history.RecordStateChange(ctx, ev.DeviceID, ev.State, ev.Prev, device.StateHistorySourceMQTT); err != nil {
			r.logger.Warn("recording state history failed", "device_id", ev.DeviceID, "error", err)
		}
	}
	if r.metrics != nil {
		if err := r.metrics.WriteStateMetrics(ctx, ev.DeviceID, ev.FriendlyName, ev.State); err != nil {
			r.logger.Warn("writing state metrics failed", "device_id", ev.DeviceID, "error", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, ev.DeviceID, ev.State); err != nil {
			r.logger.Warn("caching device state failed", "device_id", ev.DeviceID, "error", err)
		}
	}
}

// pruneCache drops cached states of devices that left the network.
func (r *Recorder) pruneCache(ctx context.Context, devices []device.Device) {
	if r.cache == nil {
		return
	}
	keep := make([]string, 0, len(devices))
	for _, d := range devices {
		keep = append(keep, d.IEEEAddress)
	}
	removed, err := r.cache.RemoveAllExcept(ctx, keep)
	if err != nil {
		r.logger.Warn("pruning state cache failed", "error", err)
		return
	}
	if len(removed) > 0 {
		r.logger.Info("pruned cached states of removed devices", "count", len(removed))
	}
}
