package engine

// Envelope is the structured turn output the LLM is asked to produce.
// Field names are part of the prompt contract in pkg/engine/prompt and
// must not change without updating the format instructions there.
type Envelope struct {
	// Reply is the conversational text shown to the user.
	Reply string `json:"reply"`

	// MilestonesCompleted lists milestone keys the model judged complete
	// this turn. Unknown keys are ignored during ingestion.
	MilestonesCompleted []string `json:"milestones_completed"`

	// Hypotheses are new or restated root-cause candidates.
	Hypotheses []HypothesisDict `json:"hypotheses"`

	// EvidenceLinks attach evidence to hypotheses by stance.
	EvidenceLinks []EvidenceLink `json:"evidence_links"`

	// SuggestedPhase optionally proposes a phase, which the engine treats
	// as a signal, never as a command.
	SuggestedPhase string `json:"suggested_phase,omitempty"`
}

// HypothesisDict is one proposed hypothesis in an envelope.
type HypothesisDict struct {
	Statement  string  `json:"statement"`
	Category   string  `json:"category"`
	Likelihood float64 `json:"likelihood"`
}

// EvidenceLink ties one piece of evidence to the hypotheses it bears on.
// When EvidenceID names evidence the case does not know yet, the optional
// descriptor fields let the engine register it before linking.
type EvidenceLink struct {
	EvidenceID string   `json:"evidence_id"`
	Supports   []string `json:"supports"`
	Refutes    []string `json:"refutes"`

	ContentSummary string `json:"content_summary,omitempty"`
	Category       string `json:"category,omitempty"`
	SourceType     string `json:"source_type,omitempty"`
}
