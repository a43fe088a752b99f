package automation

import (
	"encoding/json"
	"errors"
	"testing"
)

const ruleJSON = `{
  "id": "night-hall",
  "name": "Hall light at night",
  "triggers": [
    {"type": "device_state", "device": "hall_motion", "property": "occupancy", "to": true},
    {"type": "time", "at": "22:15"}
  ],
  "conditions": [
    {"type": "time_range", "after": "22:00", "before": "06:00"}
  ],
  "actions": [
    {"type": "device_set", "device": "hall_lamp", "entity": "main", "payload": {"state": "ON", "brightness": 40}},
    {"type": "delay", "seconds": 120},
    {"type": "conditional",
     "condition": {"type": "device_state", "device": "hall_motion", "property": "occupancy", "equals": false},
     "then": [{"type": "device_set", "device": "hall_lamp", "payload": {"state": "OFF"}}]}
  ]
}`

func TestAutomation_UnmarshalJSON(t *testing.T) {
	var a Automation
	if err := json.Unmarshal([]byte(ruleJSON), &a); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !a.Enabled {
		t.Error("Enabled should default to true when absent")
	}
	if len(a.Triggers) != 2 || a.Triggers[0].To != true || a.Triggers[1].At != "22:15" {
		t.Errorf("Triggers = %+v", a.Triggers)
	}
	if a.Actions[1].Seconds != 120 {
		t.Errorf("delay seconds = %v", a.Actions[1].Seconds)
	}
	cond := a.Actions[2]
	if cond.Condition == nil || cond.Condition.Equals != false || len(cond.Then) != 1 || cond.Else != nil {
		t.Errorf("conditional = %+v", cond)
	}
	if err := Validate(a); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestAutomation_UnmarshalExplicitDisabled(t *testing.T) {
	var a Automation
	if err := json.Unmarshal([]byte(`{"id":"x","enabled":false}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.Enabled {
		t.Error("explicit enabled=false was overridden")
	}
}

func TestUnmarshal_UnknownTypes(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"trigger", `{"id":"x","triggers":[{"type":"sunrise"}]}`},
		{"condition", `{"id":"x","conditions":[{"type":"weather"}]}`},
		{"action", `{"id":"x","actions":[{"type":"notify"}]}`},
		{"nested action", `{"id":"x","actions":[{"type":"conditional","then":[{"type":"notify"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Automation
			err := json.Unmarshal([]byte(tt.json), &a)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Unmarshal() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTrigger_Describe(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    string
	}{
		{Trigger{Type: TriggerDeviceState, Device: "door", Property: "contact"}, "device_state:door.contact"},
		{Trigger{Type: TriggerMQTT, Topic: "a/+/b"}, "mqtt:a/+/b"},
		{Trigger{Type: TriggerCron, Expression: "@hourly"}, "cron:@hourly"},
		{Trigger{Type: TriggerTime, At: "07:00"}, "time:07:00"},
		{Trigger{Type: TriggerInterval, Seconds: 90}, "interval:90s"},
	}
	for _, tt := range tests {
		if got := tt.trigger.Describe(); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}
}

func TestAutomation_DeepCopy(t *testing.T) {
	var a Automation
	if err := json.Unmarshal([]byte(ruleJSON), &a); err != nil {
		t.Fatal(err)
	}
	c := a.DeepCopy()

	c.Actions[0].Payload.(map[string]any)["state"] = "OFF"
	c.Actions[2].Then[0].Device = "other"
	c.Actions[2].Condition.Property = "illuminance"
	c.Conditions[0].After = "00:00"

	if a.Actions[0].Payload.(map[string]any)["state"] != "ON" {
		t.Error("payload shared")
	}
	if a.Actions[2].Then[0].Device != "hall_lamp" {
		t.Error("nested action shared")
	}
	if a.Actions[2].Condition.Property != "occupancy" {
		t.Error("nested condition shared")
	}
	if a.Conditions[0].After != "22:00" {
		t.Error("conditions shared")
	}
}

func TestPatch_Apply(t *testing.T) {
	base := Automation{
		ID: "id", Name: "Old", Enabled: true,
		Triggers:   []Trigger{{Type: TriggerInterval, Seconds: 10}},
		Conditions: []Condition{{Type: ConditionDayOfWeek, Days: []string{"mon"}}},
		Actions:    []Action{{Type: ActionDelay, Seconds: 1}},
	}

	var patch Patch
	if err := json.Unmarshal([]byte(`{"id":"hijack","name":"New","conditions":[]}`), &patch); err != nil {
		t.Fatal(err)
	}
	got := patch.apply(base)

	if got.ID != "id" {
		t.Errorf("ID changed to %q", got.ID)
	}
	if got.Name != "New" || !got.Enabled {
		t.Errorf("Name/Enabled = %q/%v", got.Name, got.Enabled)
	}
	if got.Conditions == nil || len(got.Conditions) != 0 {
		t.Errorf("Conditions = %v, want replaced by empty list", got.Conditions)
	}
	if len(got.Triggers) != 1 || len(got.Actions) != 1 {
		t.Error("absent fields were not kept")
	}
	if base.Name != "Old" || len(base.Conditions) != 1 {
		t.Error("apply mutated the original")
	}
}
