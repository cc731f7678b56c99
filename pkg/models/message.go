package models

import (
	"github.com/faultmaven/faultmaven/ent"
)

// AddMessageRequest contains fields for posting a user message to a case
type AddMessageRequest struct {
	CaseID  string `json:"case_id"`
	Content string `json:"content"`
	// Author is resolved by the auth middleware
	Author string `json:"-"`
}

// MessageAcceptedResponse is returned from the async message endpoint:
// the message is persisted and queued, the turn runs in the background.
// TurnID matches the turn_id on the turn.started/turn.completed events.
type MessageAcceptedResponse struct {
	MessageID string `json:"message_id"`
	CaseID    string `json:"case_id"`
	TurnID    string `json:"turn_id"`
	Status    string `json:"status"`
}

// MessageListResponse contains a case's conversation in chronological order
type MessageListResponse struct {
	Messages []*ent.CaseMessage `json:"messages"`
}
