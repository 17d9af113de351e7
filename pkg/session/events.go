// Package session implements the validation and recording logic that
// decides when lap times are eligible for the leaderboard and pushes
// new bests to the API.
package session

import "fmt"

// EventKind classifies a session event.
type EventKind int

const (
	// EventStatus is a progress update for display.
	EventStatus EventKind = iota

	// EventWarning flags a recoverable problem the driver should fix.
	EventWarning

	// EventLapRecorded reports a new personal best was submitted.
	EventLapRecorded

	// EventSessionEnded reports the session finished normally.
	EventSessionEnded

	// EventDisconnected reports the sim went away mid session.
	EventDisconnected

	// EventBlacklisted reports the API refused the submission and the
	// recording was abandoned.
	EventBlacklisted
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventWarning:
		return "warning"
	case EventLapRecorded:
		return "lap_recorded"
	case EventSessionEnded:
		return "session_ended"
	case EventDisconnected:
		return "disconnected"
	case EventBlacklisted:
		return "blacklisted"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is a single notification from the validator or recorder.
// Events are consumed at one dispatch point by the caller.
type Event struct {
	Kind    EventKind
	Message string

	// Lap carries the recorded time for EventLapRecorded.
	Lap float64
}
