// Package entity derives user-facing entities from a device's exposes.
//
// A multi-gang switch reports state_l1, state_l2 and so on; a light reports
// state, brightness and color_temp. An Entity maps the canonical names
// (state, brightness, color_temp, color) onto the native property names of
// one endpoint, so automations and the API can address "l2" of a device
// and say {"state":"ON"} without knowing the wire names.
//
// Devices without switch or light groups yield a single "main" sensor
// entity over the recognised sensor properties. Nothing here fails: odd
// exposes simply produce fewer entities.
package entity
