// Package api provides the HTTP REST API and WebSocket server for homecore.
//
// It is a thin adapter over the bridge and the automation engine: device
// listing, state reads and commands, state history, and automation CRUD.
// Bridge events and automation firings are pushed to WebSocket clients that
// subscribe to the matching channel.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
