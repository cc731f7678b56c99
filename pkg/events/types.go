// Package events provides real-time event delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-replica distribution.
//
// Every event is persisted to the events table and broadcast in the same
// transaction, so a NOTIFY is never observed for an event that did not
// commit. The row id doubles as the catch-up cursor: clients reconnecting
// send their last seen db_event_id and receive everything they missed.
//
// Channels:
//
//	case:{case_id}  — all events for one case (turn lifecycle, status,
//	                  escalation). Case detail views subscribe here.
//	cases           — case-level events (status changes, escalations)
//	                  across all cases, for list/dashboard views. NOTIFY
//	                  copies on this channel are transient; catch-up
//	                  replays the case-level event types from the table.
package events

import "strings"

// Event types (stored in DB + NOTIFY).
const (
	// Turn lifecycle: a user message was picked up, and the turn committed.
	EventTypeTurnStarted   = "turn.started"
	EventTypeTurnCompleted = "turn.completed"

	// Case lifecycle.
	EventTypeCaseStatus         = "case.status_changed"
	EventTypeEscalationRequired = "case.escalation_required"
)

// GlobalCasesChannel is the channel for case-level lifecycle events.
// The case list page subscribes to this for real-time updates.
const GlobalCasesChannel = "cases"

// caseChannelPrefix prefixes per-case channel names.
const caseChannelPrefix = "case:"

// CaseChannel returns the channel name for a specific case's events.
// Format: "case:{case_id}"
func CaseChannel(caseID string) string {
	return caseChannelPrefix + caseID
}

// CaseIDFromChannel extracts the case id from a per-case channel name.
// Returns ("", false) for the global channel or malformed names.
func CaseIDFromChannel(channel string) (string, bool) {
	caseID, ok := strings.CutPrefix(channel, caseChannelPrefix)
	if !ok || caseID == "" {
		return "", false
	}
	return caseID, true
}

// ValidChannel reports whether clients may subscribe to the channel
func ValidChannel(channel string) bool {
	if channel == GlobalCasesChannel {
		return true
	}
	_, ok := CaseIDFromChannel(channel)
	return ok
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "case:abc-123")
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup
}
