// Package cache keeps the latest state of every device in Redis so other
// processes (dashboards, scripts) can read it without subscribing to the
// broker.
//
// Keys are "device:state:<device id>" holding the JSON state object, with a
// TTL from redis.ttl_hours.
package cache
