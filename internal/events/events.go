package events

import (
	"ctchen222/Four-In-A-Row/internal/gamestate"
	"ctchen222/Four-In-A-Row/internal/session"
)

// Event is a notification from the session core to the presentation layer.
// The concrete type is one of the structs below.
type Event interface {
	Name() string
}

// Sink receives events on the session's event loop. It must not block.
type Sink func(Event)

// SessionStarted is emitted when an explicit connect request creates a session.
type SessionStarted struct {
	SessionID string
	Identity  string
}

// StatusChanged is emitted on every status transition.
type StatusChanged struct {
	From  session.Status
	To    session.Status
	Cause session.Event
}

// StateReplaced carries the store after a server snapshot was applied.
type StateReplaced struct {
	Snapshot gamestate.Snapshot
}

// GameEnded is the terminal notification for one game.
type GameEnded struct {
	Winner   string
	Snapshot gamestate.Snapshot
}

// ReconnectScheduled is emitted when a lost connection will be retried.
type ReconnectScheduled struct {
	Attempt     int
	MaxAttempts int
	DelayMillis int64
}

// GaveUp is emitted once reconnection attempts are exhausted. The session stays
// disconnected until the user connects again.
type GaveUp struct {
	Attempts int
}

func (SessionStarted) Name() string     { return "session_started" }
func (StatusChanged) Name() string      { return "status_changed" }
func (StateReplaced) Name() string      { return "state_replaced" }
func (GameEnded) Name() string          { return "game_ended" }
func (ReconnectScheduled) Name() string { return "reconnect_scheduled" }
func (GaveUp) Name() string             { return "gave_up" }
