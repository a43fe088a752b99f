package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/bridge"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Bridge  *bridge.Bridge
	Engine  *automation.Engine
	History device.StateHistoryRepository // optional
	Hub     *Hub                          // optional; created on Start when nil
	Version string
}

// Server is the HTTP API server for homecore.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	bridge      *bridge.Bridge
	engine      *automation.Engine
	history     device.StateHistoryRepository
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool
	unsubscribe func()
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Logger, Bridge and Engine are required; History and Hub are
//     optional (history routes answer 503 without a repository, and a hub
//     is created on Start when none is injected)
//
// Returns:
//   - *Server: not listening until Start is called
//   - error: when a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("automation engine is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		engine:  deps.Engine,
		history: deps.History,
		version: deps.Version,
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Start binds the listener, relays bridge events to WebSocket clients and
// serves HTTP in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	s.hub.SetSnapshot(s.snapshot)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.unsubscribe = s.bridge.Subscribe(bridge.ListenerFunc(s.relayEvent))

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.unsubscribe()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// relayEvent forwards bridge events to subscribed WebSocket clients.
// Raw MQTT traffic is not relayed.
func (s *Server) relayEvent(ev bridge.Event) {
	switch ev.Type {
	case bridge.EventStateChange:
		s.hub.Broadcast(ChannelDeviceState, map[string]any{
			"device_id":     ev.DeviceID,
			"friendly_name": ev.FriendlyName,
			"state":         ev.State,
			"prev":          ev.Prev,
		})
	case bridge.EventDevices:
		s.hub.Broadcast(ChannelDevices, map[string]any{"count": len(ev.Devices)})
	case bridge.EventBridgeState:
		s.hub.Broadcast(ChannelBridgeState, map[string]any{"state": ev.BridgeState})
	case bridge.EventConfigChange:
		s.hub.Broadcast(ChannelConfigChanged, map[string]any{"overrides": ev.Overrides})
	}
}

// snapshot seeds new WebSocket subscribers with the bridge's current view.
func (s *Server) snapshot(channel string) (any, bool) {
	switch channel {
	case ChannelDeviceState:
		return s.bridge.States(), true
	case ChannelBridgeState:
		return map[string]any{"state": s.bridge.BridgeState()}, true
	case ChannelDevices:
		return map[string]any{"count": len(s.bridge.Devices())}, true
	}
	return nil, false
}
