package models

import (
	"github.com/faultmaven/faultmaven/ent"
)

// RecordTurnRequest contains the audit fields for one committed engine turn
type RecordTurnRequest struct {
	TurnID     string `json:"turn_id"`
	CaseID     string `json:"case_id"`
	MessageID  string `json:"message_id,omitempty"`
	TurnNumber int    `json:"turn_number"`

	Outcome            string `json:"outcome"`
	ErrorKind          string `json:"error_kind,omitempty"`
	Phase              string `json:"phase"`
	Intensity          string `json:"intensity,omitempty"`
	ParseTier          string `json:"parse_tier,omitempty"`
	CaseStatus         string `json:"case_status"`
	EscalationRequired bool   `json:"escalation_required"`
	Reply              string `json:"reply"`

	MilestonesCompleted []string `json:"milestones_completed,omitempty"`
	HypothesesCreated   []string `json:"hypotheses_created,omitempty"`
	EvidenceAdded       []string `json:"evidence_added,omitempty"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
	DurationMs   int `json:"duration_ms,omitempty"`
}

// TurnListResponse contains a case's turn audit records in order
type TurnListResponse struct {
	Turns []*ent.TurnInteraction `json:"turns"`
}
