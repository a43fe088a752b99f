package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourceMQTT       = "mqtt"
	StateHistorySourceAutomation = "automation"
)

// StateHistoryEntry is one recorded state change: the merged state after
// the change and the snapshot before it.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Prev      State     `json:"prev,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state changes.
// Implementations must be safe for concurrent use and store UTC times.
type StateHistoryRepository interface {
	// RecordStateChange stores one change. prev may be nil.
	RecordStateChange(ctx context.Context, deviceID string, state, prev State, source string) error

	// GetHistory returns up to limit entries, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns how many.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
