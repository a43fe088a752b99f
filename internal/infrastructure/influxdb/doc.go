// Package influxdb writes device telemetry to InfluxDB v2.
//
// Every state change of a device becomes one "device_state" point tagged
// with the device id and friendly name; numeric and boolean properties are
// the fields. Writes are batched (batch_size, flush_interval) and
// non-blocking, so asynchronous failures are reported through SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStateMetrics(ctx, id, "hall_sensor", state)
package influxdb
