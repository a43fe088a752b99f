package device

import (
	"encoding/json"
	"fmt"
)

// Type is the zigbee network role reported by the bridge.
type Type string

// Zigbee network roles.
const (
	TypeCoordinator Type = "Coordinator"
	TypeRouter      Type = "Router"
	TypeEndDevice   Type = "EndDevice"
)

// Expose access bits.
const (
	AccessState = 1 << iota // published in state messages
	AccessSet               // writable through /set
	AccessGet               // queryable through /get
)

// Device is one entry of the <base>/bridge/devices announcement.
type Device struct {
	IEEEAddress        string     `json:"ieee_address"`
	FriendlyName       string     `json:"friendly_name"`
	Type               Type       `json:"type"`
	Manufacturer       string     `json:"manufacturer,omitempty"`
	ModelID            string     `json:"model_id,omitempty"`
	PowerSource        string     `json:"power_source,omitempty"`
	Supported          bool       `json:"supported"`
	Disabled           bool       `json:"disabled"`
	InterviewCompleted bool       `json:"interview_completed"`
	Definition         Definition `json:"definition"`
}

// Definition describes the device model and what it exposes.
// The bridge sends null for unsupported devices; that decodes to the zero
// Definition.
type Definition struct {
	Vendor      string   `json:"vendor,omitempty"`
	Model       string   `json:"model,omitempty"`
	Description string   `json:"description,omitempty"`
	Exposes     []Expose `json:"exposes,omitempty"`
}

// Expose is a capability descriptor. Generic exposes (binary, numeric,
// enum, text, composite) name a Property directly; specific exposes (light,
// switch, lock, climate) group their Features and may carry an Endpoint.
type Expose struct {
	Type        string   `json:"type"`
	Name        string   `json:"name,omitempty"`
	Label       string   `json:"label,omitempty"`
	Property    string   `json:"property,omitempty"`
	Endpoint    string   `json:"endpoint,omitempty"`
	Access      int      `json:"access,omitempty"`
	Description string   `json:"description,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	ValueOn     any      `json:"value_on,omitempty"`
	ValueOff    any      `json:"value_off,omitempty"`
	ValueToggle any      `json:"value_toggle,omitempty"`
	ValueMin    *float64 `json:"value_min,omitempty"`
	ValueMax    *float64 `json:"value_max,omitempty"`
	Values      []any    `json:"values,omitempty"`
	Features    []Expose `json:"features,omitempty"`
}

// Readable reports whether the property can be queried through /get.
func (e Expose) Readable() bool {
	return e.Access&AccessGet != 0
}

// IsCoordinator reports whether d is the network coordinator, which has no
// state of its own.
func (d Device) IsCoordinator() bool {
	return d.Type == TypeCoordinator
}

// DeepCopy returns an independent copy of the device.
func (d Device) DeepCopy() Device {
	cpy := d
	cpy.Definition.Exposes = copyExposes(d.Definition.Exposes)
	return cpy
}

func copyExposes(in []Expose) []Expose {
	if in == nil {
		return nil
	}
	out := make([]Expose, len(in))
	for i, e := range in {
		out[i] = e
		out[i].Values = append([]any(nil), e.Values...)
		out[i].Features = copyExposes(e.Features)
	}
	return out
}

// ReadableProperties lists, in expose order and without duplicates, every
// property that supports /get, descending into composite features.
func ReadableProperties(exposes []Expose) []string {
	var props []string
	seen := make(map[string]bool)

	var walk func([]Expose)
	walk = func(list []Expose) {
		for _, e := range list {
			if e.Property != "" && e.Readable() && !seen[e.Property] {
				seen[e.Property] = true
				props = append(props, e.Property)
			}
			walk(e.Features)
		}
	}
	walk(exposes)
	return props
}

// State is the last-known property map of a device.
type State map[string]any

// ParseState decodes a state message. Anything other than a JSON object is
// rejected with ErrInvalidState.
func ParseState(payload []byte) (State, error) {
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: null payload", ErrInvalidState)
	}
	return state, nil
}

// Merge shallow-merges update into s: every key in update overwrites or
// adds, keys absent from update are kept.
func (s State) Merge(update State) {
	for k, v := range update {
		s[k] = v
	}
}

// DeepCopy returns an independent copy, including nested maps and slices.
// A nil State copies to an empty one.
func (s State) DeepCopy() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = deepCopyValue(inner)
		}
		return m
	case State:
		return val.DeepCopy()
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = deepCopyValue(inner)
		}
		return s
	default:
		return v
	}
}
