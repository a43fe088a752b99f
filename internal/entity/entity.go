package entity

import (
	"fmt"

	"github.com/nerrad567/homecore/internal/device"
)

// Kind classifies an entity.
type Kind string

// Entity kinds.
const (
	KindSwitch Kind = "switch"
	KindLight  Kind = "light"
	KindSensor Kind = "sensor"
)

// MainKey is the key of an entity without an endpoint.
const MainKey = "main"

// Canonical property names accepted by ResolveCanonicalProperty.
const (
	PropState      = "state"
	PropBrightness = "brightness"
	PropColorTemp  = "color_temp"
	PropColor      = "color"
)

// Entity is a controllable or observable unit of a device. Either
// StateProperty is set (switch, light) or the entity is a pure sensor
// carrying SensorProperties.
type Entity struct {
	Key                string   `json:"key"`
	Kind               Kind     `json:"kind"`
	StateProperty      string   `json:"state_property,omitempty"`
	BrightnessProperty string   `json:"brightness_property,omitempty"`
	ColorTempProperty  string   `json:"color_temp_property,omitempty"`
	ColorProperty      string   `json:"color_property,omitempty"`
	SensorProperties   []string `json:"sensor_properties,omitempty"`
}

// sensorProperties is the allow-list for sensor entities.
var sensorProperties = map[string]bool{
	"action":          true,
	"contact":         true,
	"occupancy":       true,
	"presence":        true,
	"temperature":     true,
	"humidity":        true,
	"pressure":        true,
	"illuminance":     true,
	"illuminance_lux": true,
	"battery":         true,
	"water_leak":      true,
	"smoke":           true,
	"vibration":       true,
	"tamper":          true,
	"co2":             true,
	"voc":             true,
	"pm25":            true,
	"power":           true,
	"energy":          true,
	"voltage":         true,
	"current":         true,
}

// IsSensorProperty reports whether prop is on the sensor allow-list.
func IsSensorProperty(prop string) bool {
	return sensorProperties[prop]
}

// Extract builds the entities of a device from its exposes.
func Extract(exposes []device.Expose) []Entity {
	entities := make([]Entity, 0)
	seen := make(map[string]int)

	for _, e := range exposes {
		if e.Type != string(KindSwitch) && e.Type != string(KindLight) {
			continue
		}
		ent, ok := fromGroup(e)
		if !ok {
			continue
		}
		// Two groups without an endpoint would both be "main".
		if n := seen[ent.Key]; n > 0 {
			seen[ent.Key] = n + 1
			ent.Key = fmt.Sprintf("%s_%d", ent.Key, n+1)
		} else {
			seen[ent.Key] = 1
		}
		entities = append(entities, ent)
	}
	if len(entities) > 0 {
		return entities
	}

	var props []string
	for _, e := range exposes {
		if e.Property != "" && sensorProperties[e.Property] {
			props = append(props, e.Property)
		}
	}
	if len(props) > 0 {
		entities = append(entities, Entity{Key: MainKey, Kind: KindSensor, SensorProperties: props})
	}
	return entities
}

// fromGroup reads one switch or light group. Groups without a binary state
// feature are not entities.
func fromGroup(group device.Expose) (Entity, bool) {
	ent := Entity{Key: group.Endpoint, Kind: Kind(group.Type)}
	if ent.Key == "" {
		ent.Key = MainKey
	}

	for _, f := range group.Features {
		switch {
		case f.Name == PropState && f.Type == "binary" && f.Property != "":
			ent.StateProperty = f.Property
		case f.Name == PropBrightness && f.Property != "":
			ent.BrightnessProperty = f.Property
		case f.Name == PropColorTemp && f.Property != "":
			ent.ColorTempProperty = f.Property
		case (f.Name == "color_xy" || f.Name == "color_hs") && f.Property != "":
			if ent.ColorProperty == "" {
				ent.ColorProperty = f.Property
			}
		}
	}
	return ent, ent.StateProperty != ""
}

// Find returns the entity with the given key.
func Find(entities []Entity, key string) (Entity, bool) {
	for _, e := range entities {
		if e.Key == key {
			return e, true
		}
	}
	return Entity{}, false
}

// Properties lists the native properties the entity owns.
func (e Entity) Properties() []string {
	var props []string
	for _, p := range []string{e.StateProperty, e.BrightnessProperty, e.ColorTempProperty, e.ColorProperty} {
		if p != "" {
			props = append(props, p)
		}
	}
	return append(props, e.SensorProperties...)
}

// ResolveCanonicalProperty maps a canonical name to the entity's native
// property. Names the entity has no mapping for pass through unchanged.
func ResolveCanonicalProperty(e Entity, name string) string {
	var native string
	switch name {
	case PropState:
		native = e.StateProperty
	case PropBrightness:
		native = e.BrightnessProperty
	case PropColorTemp:
		native = e.ColorTempProperty
	case PropColor:
		native = e.ColorProperty
	}
	if native == "" {
		return name
	}
	return native
}

// ResolvePayload rewrites every key of payload through
// ResolveCanonicalProperty. Values are not copied.
func ResolvePayload(e Entity, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[ResolveCanonicalProperty(e, k)] = v
	}
	return out
}

// PartitionState slices a device state per entity key, keeping only the
// native properties each entity owns and that are present in state.
func PartitionState(entities []Entity, state device.State) map[string]device.State {
	out := make(map[string]device.State, len(entities))
	for _, e := range entities {
		part := device.State{}
		for _, p := range e.Properties() {
			if v, ok := state[p]; ok {
				part[p] = v
			}
		}
		out[e.Key] = part
	}
	return out
}
