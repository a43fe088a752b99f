package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/entity"
)

const (
	maxQueryParamLen    = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// deviceView is a device as presented to clients: the bridge record plus
// its display name and derived entities.
type deviceView struct {
	device.Device
	Name     string       `json:"name"`
	Entities []entityView `json:"entities"`
}

type entityView struct {
	entity.Entity
	Name string `json:"name"`
}

func (s *Server) viewDevice(d device.Device, overrides device.Overrides) deviceView {
	name := overrides.DisplayName(d.IEEEAddress, d.FriendlyName)
	entities := entity.Extract(d.Definition.Exposes)

	views := make([]entityView, len(entities))
	for i, e := range entities {
		views[i] = entityView{Entity: e, Name: overrides.EntityName(d.IEEEAddress, e.Key, name)}
	}
	return deviceView{Device: d, Name: name, Entities: views}
}

// deviceFromPath resolves the {id} URL parameter, which may be an address
// or a friendly name.
func (s *Server) deviceFromPath(w http.ResponseWriter, r *http.Request) (device.Device, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" || len(raw) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return device.Device{}, false
	}
	d, ok := s.bridge.Device(s.bridge.ResolveID(raw))
	if !ok {
		writeNotFound(w, "device not found")
		return device.Device{}, false
	}
	return d, true
}

// handleListDevices returns every device in announcement order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	overrides := s.bridge.Overrides()
	devices := s.bridge.Devices()

	views := make([]deviceView, len(devices))
	for i, d := range devices {
		views[i] = s.viewDevice(d, overrides)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewDevice(d, s.bridge.Overrides()))
}

// handleGetDeviceState returns the last known state, whole and sliced per
// entity. A device that has never reported returns an empty state.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}

	state, _ := s.bridge.State(d.IEEEAddress)
	if state == nil {
		state = device.State{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.IEEEAddress,
		"state":     state,
		"entities":  entity.PartitionState(entity.Extract(d.Definition.Exposes), state),
	})
}

// handleSetDeviceState sends a command. With ?entity=<key>, canonical
// property names (state, brightness, color_temp, color) are mapped to that
// entity's native properties.
//
// The response is 202 Accepted: the new state arrives later as a
// device.state_changed event.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		writeBadRequest(w, "body must be a JSON object")
		return
	}
	if len(payload) == 0 {
		writeBadRequest(w, "body must not be empty")
		return
	}

	if key := r.URL.Query().Get("entity"); key != "" {
		e, found := entity.Find(entity.Extract(d.Definition.Exposes), key)
		if !found {
			writeNotFound(w, fmt.Sprintf("entity %q not found", key))
			return
		}
		payload = entity.ResolvePayload(e, payload)
	}

	if err := s.bridge.SetDeviceState(r.Context(), d.IEEEAddress, payload); err != nil {
		s.writeTransportError(w, "failed to send command", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": d.IEEEAddress,
		"payload":   payload,
	})
}

// handleRefreshDevices asks every device to report its state.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.RefreshStates(r.Context()); err != nil {
		s.writeTransportError(w, "failed to refresh devices", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refresh requested"})
}

// handleGetDeviceHistory returns state history entries for a device.
//
// Query parameters:
//   - limit: number of entries (default 50, max 200)
//   - since: RFC 3339 lower bound (exclusive)
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromPath(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), d.IEEEAddress, limit)
	if err != nil {
		s.logger.Error("loading device history failed", "device_id", d.IEEEAddress, "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}

	if !since.IsZero() {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.CreatedAt.After(since) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.IEEEAddress,
		"history":   entries,
		"count":     len(entries),
	})
}

func (s *Server) writeTransportError(w http.ResponseWriter, message string, err error) {
	s.logger.Warn(message, "error", err)
	writeDomainError(w, err, message)
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}
	return limit, nil
}

func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
