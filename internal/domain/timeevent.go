package domain

import (
	"encoding/json"
	"time"
)

// TimeEventType discriminates how an event fires.
type TimeEventType string

const (
	// EventOnce fires at a single absolute instant, then is removed.
	EventOnce TimeEventType = "once"
	// EventPeriodic fires every IntervalSec seconds, snapping to "now"
	// when behind rather than replaying backlog.
	EventPeriodic TimeEventType = "periodic"
	// EventCron is a one-shot whose successive firings are anchored to
	// StartAtMs + k*IntervalSec, preserving the grid across pause/resume.
	EventCron TimeEventType = "cron"
)

// TimeEventStatus is the lifecycle state of a scheduled event.
type TimeEventStatus string

const (
	EventActive    TimeEventStatus = "active"
	EventPaused    TimeEventStatus = "paused"
	EventCompleted TimeEventStatus = "completed"
	EventCancelled TimeEventStatus = "cancelled"
)

// TimeEvent is a scheduled unit of work tracked by the time manager and,
// when Persistent, mirrored into the time_events table so it survives a
// process restart. The in-memory copy is authoritative while the process
// is up; the durable copy is authoritative only at startup recovery.
//
// The action callback is never persisted. Durable events carry an
// ActionType discriminator instead, which recovery maps back to a handler
// registered by the owning subsystem.
type TimeEvent struct {
	ID   string        `json:"id"`
	Type TimeEventType `json:"type"`
	Name string        `json:"name"`

	// ExecuteAtMs is the absolute firing instant for once/cron events,
	// always a whole-second multiple. Zero for periodic events.
	ExecuteAtMs int64 `json:"execute_at_ms,omitempty"`
	// IntervalSec is the seconds between firings for periodic and cron
	// events.
	IntervalSec int64 `json:"interval_sec,omitempty"`
	// LastExecutionMs is the last instant a periodic event fired.
	LastExecutionMs int64 `json:"last_execution_ms,omitempty"`
	// StartAtMs anchors the firing grid of cron events.
	StartAtMs int64 `json:"start_at_ms,omitempty"`

	Status TimeEventStatus `json:"status"`

	// PausedAtMs and RemainingMs are the pause snapshot. RemainingMs is
	// only meaningful while Status == EventPaused.
	PausedAtMs  int64 `json:"paused_at_ms,omitempty"`
	RemainingMs int64 `json:"remaining_ms,omitempty"`

	// PlayerID and WorldID scope events tied to a specific actor, used
	// to batch-deliver per-player effects.
	PlayerID string `json:"player_id,omitempty"`
	WorldID  string `json:"world_id,omitempty"`

	// ActionType selects the handler reconstructed after a restart;
	// Metadata is the opaque payload that handler interprets.
	ActionType string          `json:"action_type,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`

	Persistent bool `json:"persistent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue reports whether a one-shot event should fire at the given rounded
// instant.
func (e *TimeEvent) IsDue(nowMs int64) bool {
	return e.Status == EventActive && e.ExecuteAtMs > 0 && e.ExecuteAtMs <= nowMs
}

// TimeManagerStats is the introspection snapshot exposed to admin tooling.
type TimeManagerStats struct {
	PeriodicEvents int `json:"periodic_events"`
	OnceEvents     int `json:"once_events"`
	PausedEvents   int `json:"paused_events"`
	Buckets        int `json:"buckets"`
}
