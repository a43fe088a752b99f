package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/entity"
)

// executeActions walks the list in order. The first error stops the rest of
// this list and propagates up through any enclosing conditional.
func (e *Engine) executeActions(ctx context.Context, actions []Action, depth int) error {
	if depth > maxActionDepth {
		return fmt.Errorf("%w: conditionals nested deeper than %d", ErrActionExecution, maxActionDepth)
	}
	for i, a := range actions {
		if err := e.executeAction(ctx, a, depth); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func (e *Engine) executeAction(ctx context.Context, a Action, depth int) error {
	switch a.Type {
	case ActionDeviceSet:
		return e.deviceSet(ctx, a)

	case ActionMQTTPublish:
		payload, err := publishPayload(a.Payload)
		if err != nil {
			return fmt.Errorf("%w: encoding payload: %w", ErrActionExecution, err)
		}
		if err := e.devices.Publish(ctx, a.Topic, payload); err != nil {
			return fmt.Errorf("%w: %w", ErrActionExecution, err)
		}
		return nil

	case ActionDelay:
		if a.Seconds <= 0 {
			return nil
		}
		select {
		case <-e.clock.After(time.Duration(a.Seconds * float64(time.Second))):
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrActionExecution, ctx.Err())
		}

	case ActionConditional:
		if a.Condition != nil && e.evaluateCondition(*a.Condition) {
			return e.executeActions(ctx, a.Then, depth+1)
		}
		return e.executeActions(ctx, a.Else, depth+1)

	default:
		return fmt.Errorf("%w: unknown action type %q", ErrActionExecution, a.Type)
	}
}

// deviceSet sends a command. With an entity key, canonical property names in
// the payload are rewritten to that entity's native properties; an unknown
// device or entity leaves the payload as written.
func (e *Engine) deviceSet(ctx context.Context, a Action) error {
	payload, ok := a.Payload.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: device_set payload must be an object", ErrActionExecution)
	}
	payload = copyValue(payload).(map[string]any)

	id := e.devices.ResolveID(a.Device)
	if a.Entity != "" {
		if d, ok := e.devices.Device(id); ok {
			if ent, ok := entity.Find(e.resolver(d), a.Entity); ok {
				payload = entity.ResolvePayload(ent, payload)
			}
		}
	}

	if err := e.devices.SetDeviceState(ctx, id, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrActionExecution, err)
	}
	return nil
}

// publishPayload sends strings verbatim and JSON-encodes everything else.
func publishPayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}
