package topic

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		// exact
		{"zigbee2mqtt/hall_lamp", "zigbee2mqtt/hall_lamp", true},
		{"zigbee2mqtt/hall_lamp", "zigbee2mqtt/kitchen_lamp", false},
		{"zigbee2mqtt/hall_lamp", "zigbee2mqtt/hall_lamp/set", false},
		{"zigbee2mqtt/hall_lamp/set", "zigbee2mqtt/hall_lamp", false},
		{"Zigbee2mqtt/a", "zigbee2mqtt/a", false},

		// single level
		{"zigbee2mqtt/+", "zigbee2mqtt/hall_lamp", true},
		{"zigbee2mqtt/+", "zigbee2mqtt/hall_lamp/set", false},
		{"zigbee2mqtt/+/set", "zigbee2mqtt/hall_lamp/set", true},
		{"zigbee2mqtt/+/set", "zigbee2mqtt/hall_lamp/get", false},
		{"+/+", "a/b", true},
		{"+", "a/b", false},
		{"zigbee2mqtt/+", "zigbee2mqtt/", true},

		// multi level
		{"zigbee2mqtt/#", "zigbee2mqtt/hall_lamp", true},
		{"zigbee2mqtt/#", "zigbee2mqtt/hall_lamp/set", true},
		{"zigbee2mqtt/#", "other/hall_lamp", false},
		{"#", "anything/at/all", true},
		{"zigbee2mqtt/+/#", "zigbee2mqtt/hall_lamp/availability", true},

		// "#" matches zero trailing levels: the parent itself.
		{"zigbee2mqtt/#", "zigbee2mqtt", true},
		{"a/b/#", "a/b", true},
		{"a/b/#", "a", false},

		// "#" that is not last never matches.
		{"a/#/c", "a/b/c", false},
		{"#/c", "a/c", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.topic, func(t *testing.T) {
			if got := Match(tt.pattern, tt.topic); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
			}
		})
	}
}
