package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementDeviceState is the measurement every state change lands in.
const measurementDeviceState = "device_state"

// WriteStateMetrics records the numeric and boolean properties of a device
// state as one point. Other property types are skipped; a state with
// nothing numeric writes nothing.
//
//	client.WriteStateMetrics(ctx, "0x00158d0001a2b3c4", "hall_sensor",
//	    map[string]any{"temperature": 21.5, "occupancy": true, "battery": 97})
func (c *Client) WriteStateMetrics(_ context.Context, deviceID, friendlyName string, state map[string]any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	fields := stateFields(state)
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{"device_id": deviceID}
	if friendlyName != "" {
		tags["friendly_name"] = friendlyName
	}

	c.writer.WritePoint(write.NewPoint(measurementDeviceState, tags, fields, time.Now()))
	return nil
}

// stateFields keeps the properties InfluxDB can store as numeric fields.
// Booleans are kept as-is; integers and floats become float64 so a field
// never flips type between writes.
func stateFields(state map[string]any) map[string]any {
	fields := make(map[string]any, len(state))
	for key, value := range state {
		switch v := value.(type) {
		case bool:
			fields[key] = v
		case float64:
			fields[key] = v
		case float32:
			fields[key] = float64(v)
		case int:
			fields[key] = float64(v)
		case int64:
			fields[key] = float64(v)
		case int32:
			fields[key] = float64(v)
		case uint:
			fields[key] = float64(v)
		case uint64:
			fields[key] = float64(v)
		}
	}
	return fields
}
