package events

import (
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/ent/turninteraction"
)

// TurnStartedPayload is the payload for turn.started events.
// Published when the executor picks up a queued user message.
type TurnStartedPayload struct {
	Type      string `json:"type"`       // always EventTypeTurnStarted
	CaseID    string `json:"case_id"`    // owning case
	MessageID string `json:"message_id"` // user message being processed
	Timestamp string `json:"timestamp"`  // RFC3339Nano
}

// TurnCompletedPayload is the payload for turn.completed events.
// Published after a turn commits, whatever its outcome. ERROR turns are
// committed turns too; they carry error_kind.
type TurnCompletedPayload struct {
	Type       string                  `json:"type"`                 // always EventTypeTurnCompleted
	CaseID     string                  `json:"case_id"`              // owning case
	TurnID     string                  `json:"turn_id"`              // audit record UUID
	MessageID  string                  `json:"message_id,omitempty"` // triggering user message
	TurnNumber int                     `json:"turn_number"`          // 1-based
	Outcome    turninteraction.Outcome `json:"outcome"`              // PROGRESS, EVIDENCE_COLLECTED, CONVERSATION, STALLED, ERROR
	ErrorKind  string                  `json:"error_kind,omitempty"` // set on ERROR outcomes
	Phase      string                  `json:"phase"`                // investigation phase after the turn
	Reply      string                  `json:"reply"`                // assistant reply text
	CaseStatus faultcase.Status        `json:"case_status"`          // case status after the turn
	Timestamp  string                  `json:"timestamp"`            // RFC3339Nano
}

// CaseStatusPayload is the payload for case.status_changed events.
// Published when a case transitions between lifecycle statuses, whether
// by an engine auto-transition, a confirmed consulting transition or an
// explicit close.
type CaseStatusPayload struct {
	Type      string           `json:"type"`    // always EventTypeCaseStatus
	CaseID    string           `json:"case_id"` // case UUID
	Status    faultcase.Status `json:"status"`  // CONSULTING, INVESTIGATING, DOCUMENTING, RESOLVED, CLOSED
	Title     string           `json:"title,omitempty"`
	Timestamp string           `json:"timestamp"` // RFC3339Nano
}

// EscalationRequiredPayload is the payload for case.escalation_required
// events. Published once per turn that raises the escalation flag.
type EscalationRequiredPayload struct {
	Type      string `json:"type"`    // always EventTypeEscalationRequired
	CaseID    string `json:"case_id"` // case UUID
	Title     string `json:"title,omitempty"`
	Phase     string `json:"phase"`  // phase the investigation is stuck in
	Reason    string `json:"reason"` // loop-back budget exhausted, degraded mode
	Timestamp string `json:"timestamp"`
}
