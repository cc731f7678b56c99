package state

import (
	"encoding/json"
	"fmt"
)

type jsonRaw = json.RawMessage

// stateJSON mirrors InvestigationState for (un)marshaling. Field tags are
// the persistence contract; renames require a schema version bump.
type stateJSON struct {
	SchemaVersion    int           `json:"schema_version"`
	ProblemStatement string        `json:"problem_statement,omitempty"`
	TemporalState    TemporalState `json:"temporal_state,omitempty"`
	UrgencyLevel     UrgencyLevel  `json:"urgency_level,omitempty"`
	Strategy         Strategy      `json:"strategy,omitempty"`

	CurrentPhase Phase              `json:"current_phase"`
	Hypotheses   []Hypothesis       `json:"hypotheses"`
	Evidence     []Evidence         `json:"evidence"`
	TurnHistory  []TurnRecord       `json:"turn_history"`
	Milestones   map[Milestone]bool `json:"milestones"`
	Memory       HierarchicalMemory `json:"memory"`

	OODA              *OODAState         `json:"ooda_state,omitempty"`
	WorkingConclusion *WorkingConclusion `json:"working_conclusion,omitempty"`
	Progress          *ProgressMetrics   `json:"progress_metrics,omitempty"`
	DegradedMode      *DegradedModeData  `json:"degraded_mode,omitempty"`

	LoopbackCount              int  `json:"loopback_count"`
	ForceAlternativeCategories bool `json:"force_alternative_categories,omitempty"`
}

// knownStateFields are the top-level keys this schema version owns.
// Everything else read from storage is carried through untouched.
var knownStateFields = map[string]struct{}{
	"schema_version": {}, "problem_statement": {}, "temporal_state": {},
	"urgency_level": {}, "strategy": {}, "current_phase": {},
	"hypotheses": {}, "evidence": {}, "turn_history": {}, "milestones": {},
	"memory": {}, "ooda_state": {}, "working_conclusion": {},
	"progress_metrics": {}, "degraded_mode": {}, "loopback_count": {},
	"force_alternative_categories": {},
}

func (s *InvestigationState) toJSON() stateJSON {
	return stateJSON{
		SchemaVersion:              s.SchemaVersion,
		ProblemStatement:           s.ProblemStatement,
		TemporalState:              s.TemporalState,
		UrgencyLevel:               s.UrgencyLevel,
		Strategy:                   s.Strategy,
		CurrentPhase:               s.CurrentPhase,
		Hypotheses:                 s.Hypotheses,
		Evidence:                   s.Evidence,
		TurnHistory:                s.TurnHistory,
		Milestones:                 s.Milestones,
		Memory:                     s.Memory,
		OODA:                       s.OODA,
		WorkingConclusion:          s.WorkingConclusion,
		Progress:                   s.Progress,
		DegradedMode:               s.DegradedMode,
		LoopbackCount:              s.LoopbackCount,
		ForceAlternativeCategories: s.ForceAlternativeCategories,
	}
}

func (j stateJSON) toState() InvestigationState {
	return InvestigationState{
		SchemaVersion:              j.SchemaVersion,
		ProblemStatement:           j.ProblemStatement,
		TemporalState:              j.TemporalState,
		UrgencyLevel:               j.UrgencyLevel,
		Strategy:                   j.Strategy,
		CurrentPhase:               j.CurrentPhase,
		Hypotheses:                 j.Hypotheses,
		Evidence:                   j.Evidence,
		TurnHistory:                j.TurnHistory,
		Milestones:                 j.Milestones,
		Memory:                     j.Memory,
		OODA:                       j.OODA,
		WorkingConclusion:          j.WorkingConclusion,
		Progress:                   j.Progress,
		DegradedMode:               j.DegradedMode,
		LoopbackCount:              j.LoopbackCount,
		ForceAlternativeCategories: j.ForceAlternativeCategories,
	}
}

// MarshalJSON emits the known fields and re-attaches any preserved unknown
// fields. Output is deterministic: struct order when there are no unknown
// fields, sorted keys otherwise.
func (s InvestigationState) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(s.toJSON())
	if err != nil {
		return nil, err
	}
	if len(s.unknown) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(knownStateFields)+len(s.unknown))
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.unknown {
		if _, ours := merged[k]; !ours {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and stashes everything else for
// forward compatibility with newer schema versions.
func (s *InvestigationState) UnmarshalJSON(data []byte) error {
	var j stateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("decode investigation state: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode investigation state fields: %w", err)
	}
	*s = j.toState()
	for k := range raw {
		if _, known := knownStateFields[k]; known {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		s.unknown = raw
	}
	return nil
}

// UnknownFieldCount reports how many foreign top-level fields are being
// preserved. Exposed for tests and diagnostics.
func (s *InvestigationState) UnknownFieldCount() int {
	return len(s.unknown)
}

// Clone deep-copies the state through its JSON form, unknown fields
// included. The engine mutates a clone and writes it back only after
// invariant validation, so aborted turns leave the original untouched.
func (s *InvestigationState) Clone() (*InvestigationState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	var out InvestigationState
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	return &out, nil
}
