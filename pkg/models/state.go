package models

import (
	"github.com/faultmaven/faultmaven/pkg/engine/state"
)

// CaseStateResponse exposes a case's investigation state. State is nil
// until the first committed turn (or transition confirmation).
type CaseStateResponse struct {
	CaseID             string                    `json:"case_id"`
	Status             string                    `json:"status"`
	EscalationRequired bool                      `json:"escalation_required"`
	State              *state.InvestigationState `json:"state"`
}
