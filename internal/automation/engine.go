package automation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homecore/internal/bridge"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/entity"
	"github.com/nerrad567/homecore/internal/topic"
)

// Logger defines the logging interface used by the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceBridge is the subset of the device state bridge the engine uses.
// *bridge.Bridge satisfies it.
type DeviceBridge interface {
	SetDeviceState(ctx context.Context, deviceID string, payload map[string]any) error
	Publish(ctx context.Context, topic string, payload []byte) error
	State(id string) (device.State, bool)
	Device(id string) (device.Device, bool)
	ResolveID(nameOrID string) string
	Subscribe(l bridge.Listener) (unsubscribe func())
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers a callback invoked after every firing whose
// conditions passed. It runs on the firing goroutine.
func WithObserver(fn func(Firing)) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLocation sets the zone for time triggers and time conditions.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithResolver replaces how a device's entities are derived for
// entity-aware device_set actions.
func WithResolver(fn func(device.Device) []entity.Entity) Option {
	return func(e *Engine) {
		if fn != nil {
			e.resolver = fn
		}
	}
}

// Engine evaluates automations against bridge events and schedules.
//
// Thread Safety:
//   - The rule list is guarded by mu. Mutations hold the write lock across
//     persist, disarmAll and armAll so the armed set always matches the list.
//   - Each firing runs on its own goroutine. A delay only suspends its own
//     sequence and in-flight sequences are never cancelled.
type Engine struct {
	store    Store
	devices  DeviceBridge
	logger   Logger
	observer func(Firing)
	clock    Clock
	loc      *time.Location
	resolver func(device.Device) []entity.Entity

	mu          sync.RWMutex
	automations []Automation
	sched       *scheduler
	unsubscribe func()
	started     bool
	destroyed   bool

	firings sync.WaitGroup
}

// New creates an engine. Call Start to load the rule set and begin
// evaluating triggers.
func New(store Store, devices DeviceBridge, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		devices:     devices,
		logger:      noopLogger{},
		clock:       realClock{},
		loc:         time.Local,
		automations: []Automation{},
		resolver: func(d device.Device) []entity.Entity {
			return entity.Extract(d.Definition.Exposes)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = newScheduler(e.loc, e.logger)
	return e
}

// Start loads the persisted rule set, starts the scheduler, arms every
// enabled automation and subscribes to the bridge. A file that does not
// parse, or that holds an automation failing Validate, is returned as
// ErrPersistence and nothing is armed.
func (e *Engine) Start(ctx context.Context) error {
	loaded, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading automations: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	for _, a := range loaded {
		if err := Validate(a); err != nil {
			return fmt.Errorf("%w: automation %q: %w", ErrPersistence, a.ID, err)
		}
	}
	e.automations = loaded
	e.sched.start()
	e.armAll()
	e.unsubscribe = e.devices.Subscribe(e)
	e.started = true

	e.logger.Info("automation engine started", "automations", len(loaded), "scheduled", e.sched.count())
	return nil
}

// Destroy disarms every trigger, stops the scheduler and unsubscribes from
// the bridge. In-flight action sequences run to completion.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.destroyed = true

	e.disarmAll()
	e.sched.stop()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.logger.Info("automation engine stopped")
}

// GetAll returns copies of every automation in insertion order.
func (e *Engine) GetAll() []Automation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Automation, len(e.automations))
	for i, a := range e.automations {
		out[i] = a.DeepCopy()
	}
	return out
}

// Get returns a copy of one automation.
func (e *Engine) Get(id string) (Automation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.indexOf(id)
	if i < 0 {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.automations[i].DeepCopy(), nil
}

// Create validates and stores a new automation. An empty id is replaced by
// a generated UUID. A duplicate id returns ErrDuplicateID and leaves both
// the rule set and the file untouched.
func (e *Engine) Create(ctx context.Context, a Automation) (Automation, error) {
	a = a.DeepCopy()
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	if a.Conditions == nil {
		a.Conditions = []Condition{}
	}
	if err := Validate(a); err != nil {
		return Automation{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexOf(a.ID) >= 0 {
		return Automation{}, fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}

	next := append(slices.Clone(e.automations), a)
	if err := e.commit(ctx, next); err != nil {
		return Automation{}, err
	}
	e.logger.Info("automation created", "id", a.ID, "name", a.Name)
	return a.DeepCopy(), nil
}

// Update applies a partial patch. The id never changes.
func (e *Engine) Update(ctx context.Context, id string, patch Patch) (Automation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(id)
	if i < 0 {
		return Automation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := patch.apply(e.automations[i])
	if err := Validate(updated); err != nil {
		return Automation{}, err
	}

	next := slices.Clone(e.automations)
	next[i] = updated
	if err := e.commit(ctx, next); err != nil {
		return Automation{}, err
	}
	e.logger.Info("automation updated", "id", id)
	return updated.DeepCopy(), nil
}

// Remove deletes an automation.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := slices.Delete(slices.Clone(e.automations), i, i+1)
	if err := e.commit(ctx, next); err != nil {
		return err
	}
	e.logger.Info("automation removed", "id", id)
	return nil
}

// commit persists next and swaps it in, then re-arms. The in-memory list
// only changes once the file write succeeded. Caller holds mu.
func (e *Engine) commit(ctx context.Context, next []Automation) error {
	if err := e.store.Save(ctx, next); err != nil {
		if errors.Is(err, ErrPersistence) {
			return fmt.Errorf("saving automations: %w", err)
		}
		return fmt.Errorf("%w: saving automations: %w", ErrPersistence, err)
	}
	e.automations = next
	e.disarmAll()
	if !e.destroyed {
		e.armAll()
	}
	return nil
}

// indexOf returns the position of id or -1. Caller holds mu.
func (e *Engine) indexOf(id string) int {
	return slices.IndexFunc(e.automations, func(a Automation) bool { return a.ID == id })
}

// armAll schedules every time-based trigger of every enabled automation.
// Reactive triggers need no arming. Caller holds mu.
func (e *Engine) armAll() {
	for _, a := range e.automations {
		if !a.Enabled {
			continue
		}
		for _, t := range a.Triggers {
			if !isScheduled(t) {
				continue
			}
			id, desc := a.ID, t.Describe()
			if err := e.sched.add(t, func() { e.fireScheduled(id, desc) }); err != nil {
				e.logger.Warn("cannot arm trigger", "id", a.ID, "trigger", desc, "error", err)
			}
		}
	}
}

// disarmAll removes every scheduled trigger. Caller holds mu.
func (e *Engine) disarmAll() {
	e.sched.removeAll()
}

// fireScheduled looks up the current definition so a firing never runs a
// stale copy.
func (e *Engine) fireScheduled(id, desc string) {
	e.mu.RLock()
	if e.destroyed {
		e.mu.RUnlock()
		return
	}
	i := e.indexOf(id)
	if i < 0 || !e.automations[i].Enabled {
		e.mu.RUnlock()
		return
	}
	a := e.automations[i].DeepCopy()
	e.fire(a, desc)
	e.mu.RUnlock()
}

// HandleEvent implements bridge.Listener. Matching and conditions are
// synchronous; the actions of each matching automation run once per event
// on their own goroutine.
func (e *Engine) HandleEvent(ev bridge.Event) {
	if ev.Type != bridge.EventStateChange && ev.Type != bridge.EventMQTTMessage {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.destroyed {
		return
	}

	for _, a := range e.automations {
		if !a.Enabled {
			continue
		}
		for _, t := range a.Triggers {
			if triggerMatches(t, ev) {
				e.fire(a.DeepCopy(), t.Describe())
				break
			}
		}
	}
}

// triggerMatches reports whether a reactive trigger accepts the event.
func triggerMatches(t Trigger, ev bridge.Event) bool {
	switch {
	case t.Type == TriggerDeviceState && ev.Type == bridge.EventStateChange:
		if t.Device != ev.DeviceID && t.Device != ev.FriendlyName {
			return false
		}
		value, ok := ev.State[t.Property]
		if !ok {
			return false
		}
		if t.To != nil && !valuesEqual(value, t.To) {
			return false
		}
		if t.From != nil {
			prev, had := ev.Prev[t.Property]
			if !had || !valuesEqual(prev, t.From) {
				return false
			}
		}
		return true

	case t.Type == TriggerMQTT && ev.Type == bridge.EventMQTTMessage:
		if !topic.Match(t.Topic, ev.Topic) {
			return false
		}
		return t.Payload == "" || strings.Contains(string(ev.Payload), t.Payload)

	default:
		return false
	}
}

// fire evaluates conditions against the state at the moment of the trigger,
// then runs the actions on their own goroutine. A failing condition drops
// the firing silently.
func (e *Engine) fire(a Automation, desc string) {
	if !e.conditionsMet(a.Conditions) {
		return
	}
	e.firings.Add(1)
	go func() {
		defer e.firings.Done()
		e.run(context.Background(), a, desc)
	}()
}

// conditionsMet ANDs conditions in order, stopping at the first failure.
func (e *Engine) conditionsMet(conds []Condition) bool {
	for _, c := range conds {
		if !e.evaluateCondition(c) {
			return false
		}
	}
	return true
}

// run executes the action list of a firing whose conditions held.
func (e *Engine) run(ctx context.Context, a Automation, desc string) {
	e.logger.Info("automation fired", "id", a.ID, "name", a.Name, "trigger", desc)
	err := e.executeActions(ctx, a.Actions, 0)
	if err != nil {
		e.logger.Error("automation action failed", "id", a.ID, "trigger", desc, "error", err)
	}

	if e.observer != nil {
		f := Firing{
			AutomationID: a.ID,
			Name:         a.Name,
			Trigger:      desc,
			At:           e.clock.Now(),
			Err:          err,
		}
		if err != nil {
			f.Error = err.Error()
		}
		e.observer(f)
	}
}

// wait blocks until every in-flight firing has finished.
func (e *Engine) wait() {
	e.firings.Wait()
}
