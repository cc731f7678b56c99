package models

// ConfirmTransitionRequest carries the user's (possibly corrected)
// classification when approving the move from consulting to investigation.
type ConfirmTransitionRequest struct {
	TemporalState string `json:"temporal_state"`
	UrgencyLevel  string `json:"urgency_level"`
}

// TransitionProposalResponse is the engine's suggested classification.
// The user confirms or corrects it before the case starts investigating.
type TransitionProposalResponse struct {
	CaseID        string  `json:"case_id"`
	TemporalState string  `json:"temporal_state"`
	UrgencyLevel  string  `json:"urgency_level"`
	Strategy      string  `json:"strategy"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// ConfirmTransitionResponse reports the applied classification and the
// case's new status.
type ConfirmTransitionResponse struct {
	CaseID        string `json:"case_id"`
	Status        string `json:"status"`
	TemporalState string `json:"temporal_state"`
	UrgencyLevel  string `json:"urgency_level"`
	Strategy      string `json:"strategy"`
}
