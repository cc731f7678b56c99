package models

import "github.com/faultmaven/faultmaven/ent"

// CreateEventRequest is the input for persisting one case event.
type CreateEventRequest struct {
	CaseID    string         `json:"case_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// EventResponse wraps a single event row.
type EventResponse struct {
	*ent.Event
}

// EventsResponse is the catch-up query result: every event after the
// client's cursor, oldest first.
type EventsResponse struct {
	Events []*ent.Event `json:"events"`
}
