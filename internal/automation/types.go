package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TriggerType identifies what starts an automation.
type TriggerType string

// Trigger types.
const (
	TriggerDeviceState TriggerType = "device_state"
	TriggerMQTT        TriggerType = "mqtt"
	TriggerCron        TriggerType = "cron"
	TriggerTime        TriggerType = "time"
	TriggerInterval    TriggerType = "interval"
)

// ConditionType identifies a guard evaluated before actions run.
type ConditionType string

// Condition types.
const (
	ConditionTimeRange   ConditionType = "time_range"
	ConditionDayOfWeek   ConditionType = "day_of_week"
	ConditionDeviceState ConditionType = "device_state"
)

// ActionType identifies a step in an action sequence.
type ActionType string

// Action types.
const (
	ActionDeviceSet   ActionType = "device_set"
	ActionMQTTPublish ActionType = "mqtt_publish"
	ActionDelay       ActionType = "delay"
	ActionConditional ActionType = "conditional"
)

// Automation is a declarative rule. Triggers are ORed, conditions are ANDed
// and actions run in order.
type Automation struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Triggers   []Trigger   `json:"triggers"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// Trigger is a tagged union keyed by Type. Only the fields of that type are
// meaningful.
type Trigger struct {
	Type TriggerType `json:"type"`

	// device_state
	Device   string `json:"device,omitempty"`
	Property string `json:"property,omitempty"`
	To       any    `json:"to,omitempty"`
	From     any    `json:"from,omitempty"`

	// mqtt: Topic is a filter, Payload a required substring.
	Topic   string `json:"topic,omitempty"`
	Payload string `json:"payload,omitempty"`

	// cron
	Expression string `json:"expression,omitempty"`

	// time ("HH:MM", site local)
	At string `json:"at,omitempty"`

	// interval
	Seconds int `json:"seconds,omitempty"`
}

// Condition is a tagged union keyed by Type.
type Condition struct {
	Type ConditionType `json:"type"`

	// time_range: [After, Before) in "HH:MM", wrapping midnight when After > Before.
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`

	// day_of_week: mon..sun
	Days []string `json:"days,omitempty"`

	// device_state
	Device   string `json:"device,omitempty"`
	Property string `json:"property,omitempty"`
	Equals   any    `json:"equals,omitempty"`
}

// Action is a recursive tagged union keyed by Type.
type Action struct {
	Type ActionType `json:"type"`

	// device_set: Payload is a JSON object. mqtt_publish: a string is sent
	// verbatim, anything else is JSON encoded.
	Device  string `json:"device,omitempty"`
	Entity  string `json:"entity,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Payload any    `json:"payload,omitempty"`

	// delay
	Seconds float64 `json:"seconds,omitempty"`

	// conditional
	Condition *Condition `json:"condition,omitempty"`
	Then      []Action   `json:"then,omitempty"`
	Else      []Action   `json:"else,omitempty"`
}

// Patch is a partial update. Nil fields are left untouched. It carries no
// id, so an automation's id can never change.
type Patch struct {
	Name       *string     `json:"name,omitempty"`
	Enabled    *bool       `json:"enabled,omitempty"`
	Triggers   []Trigger   `json:"triggers,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Actions    []Action    `json:"actions,omitempty"`
}

// Firing reports one completed run of an automation whose conditions passed.
type Firing struct {
	AutomationID string    `json:"automation_id"`
	Name         string    `json:"name"`
	Trigger      string    `json:"trigger"`
	At           time.Time `json:"at"`
	Err          error     `json:"-"`
	Error        string    `json:"error,omitempty"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent.
func (a *Automation) UnmarshalJSON(data []byte) error {
	type plain Automation
	p := plain{Enabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Automation(p)
	return nil
}

// UnmarshalJSON rejects unknown trigger types.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	type plain Trigger
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Type {
	case TriggerDeviceState, TriggerMQTT, TriggerCron, TriggerTime, TriggerInterval:
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrValidation, p.Type)
	}
	*t = Trigger(p)
	return nil
}

// UnmarshalJSON rejects unknown condition types.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Type {
	case ConditionTimeRange, ConditionDayOfWeek, ConditionDeviceState:
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrValidation, p.Type)
	}
	*c = Condition(p)
	return nil
}

// UnmarshalJSON rejects unknown action types. Nested branches decode
// through the same method.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Type {
	case ActionDeviceSet, ActionMQTTPublish, ActionDelay, ActionConditional:
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, p.Type)
	}
	*a = Action(p)
	return nil
}

// Describe renders the trigger for logs and firing reports.
func (t Trigger) Describe() string {
	switch t.Type {
	case TriggerDeviceState:
		return "device_state:" + t.Device + "." + t.Property
	case TriggerMQTT:
		return "mqtt:" + t.Topic
	case TriggerCron:
		return "cron:" + t.Expression
	case TriggerTime:
		return "time:" + t.At
	case TriggerInterval:
		return "interval:" + strconv.Itoa(t.Seconds) + "s"
	default:
		return string(t.Type)
	}
}

// DeepCopy returns a copy sharing no mutable state with a.
func (a Automation) DeepCopy() Automation {
	out := a
	if a.Triggers != nil {
		out.Triggers = make([]Trigger, len(a.Triggers))
		for i, t := range a.Triggers {
			t.To = copyValue(t.To)
			t.From = copyValue(t.From)
			out.Triggers[i] = t
		}
	}
	out.Conditions = copyConditions(a.Conditions)
	out.Actions = copyActions(a.Actions)
	return out
}

func copyConditions(in []Condition) []Condition {
	if in == nil {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		out[i] = copyCondition(c)
	}
	return out
}

func copyCondition(c Condition) Condition {
	if c.Days != nil {
		c.Days = append([]string(nil), c.Days...)
	}
	c.Equals = copyValue(c.Equals)
	return c
}

func copyActions(in []Action) []Action {
	if in == nil {
		return nil
	}
	out := make([]Action, len(in))
	for i, a := range in {
		a.Payload = copyValue(a.Payload)
		if a.Condition != nil {
			c := copyCondition(*a.Condition)
			a.Condition = &c
		}
		a.Then = copyActions(a.Then)
		a.Else = copyActions(a.Else)
		out[i] = a
	}
	return out
}

// apply merges the present patch fields over a copy of a.
func (p Patch) apply(a Automation) Automation {
	out := a.DeepCopy()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.Triggers != nil {
		out.Triggers = Automation{Triggers: p.Triggers}.DeepCopy().Triggers
	}
	if p.Conditions != nil {
		out.Conditions = copyConditions(p.Conditions)
	}
	if p.Actions != nil {
		out.Actions = copyActions(p.Actions)
	}
	return out
}
