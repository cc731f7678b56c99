// Package state defines the investigation state aggregate: the versioned
// JSON document the engine mutates each turn and the caller persists per
// case. Hypotheses, evidence, and turn records live in flat slices and
// cross-reference each other by opaque string ids, which keeps the whole
// aggregate serializable without pointer cycles.
package state

import (
	"fmt"
	"time"
)

// SchemaVersion is the current persisted format version. Renaming envelope
// or state fields requires bumping it.
const SchemaVersion = 1

// InvestigationState is the root aggregate for one case's investigation.
// It is persisted as an opaque JSON blob keyed by case id and mutated only
// under the caller's per-case lease.
type InvestigationState struct {
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

	LoopbackCount int `json:"loopback_count"`

	// ForceAlternativeCategories is set by anchoring mitigation and consumed
	// (cleared) by the next prompt composition.
	ForceAlternativeCategories bool `json:"force_alternative_categories,omitempty"`

	// unknown holds fields written by newer schema versions; preserved
	// verbatim across read-modify-write.
	unknown map[string]jsonRaw
}

// Hypothesis is a candidate root cause with a confidence lifecycle.
type Hypothesis struct {
	ID         string             `json:"hypothesis_id"`
	Statement  string             `json:"statement"`
	Category   HypothesisCategory `json:"category"`
	Status     HypothesisStatus   `json:"status"`
	Likelihood float64            `json:"likelihood"`
	Confidence float64            `json:"confidence"`

	ConfidenceTrajectory  []ConfidencePoint `json:"confidence_trajectory"`
	SupportingEvidenceIDs []string          `json:"supporting_evidence_ids"`
	RefutingEvidenceIDs   []string          `json:"refuting_evidence_ids"`

	CreatedTurn               int `json:"created_turn"`
	LastUpdatedTurn           int `json:"last_updated_turn"`
	IterationsWithoutProgress int `json:"iterations_without_progress"`
}

// ConfidencePoint is one (turn, confidence) sample in a trajectory.
type ConfidencePoint struct {
	Turn       int     `json:"turn"`
	Confidence float64 `json:"confidence"`
}

// Evidence is a recorded piece of information, linkable to hypotheses with a
// supporting or refuting stance.
type Evidence struct {
	ID             string             `json:"evidence_id"`
	Category       EvidenceCategory   `json:"category"`
	SourceType     EvidenceSourceType `json:"source_type"`
	ContentSummary string             `json:"content_summary"`
	AttachedFileID string             `json:"attached_file_id,omitempty"`
	TurnAdded      int                `json:"turn_added"`
}

// TurnRecord is the committed outcome of one turn. Turn numbers are 1-based
// and strictly monotonic with no gaps.
type TurnRecord struct {
	TurnNumber          int             `json:"turn_number"`
	Role                string          `json:"role"`
	Outcome             TurnOutcomeKind `json:"outcome"`
	ProgressMade        bool            `json:"progress_made"`
	MilestonesCompleted []Milestone     `json:"milestones_completed_this_turn"`
	HypothesesCreated   []string        `json:"hypotheses_created"`
	Timestamp           time.Time       `json:"timestamp"`
}

// HierarchicalMemory holds the three snapshot tiers the Memory Manager
// maintains. Hot covers the last few turns near-verbatim, warm summarizes
// context attached to live hypotheses, cold archives deduplicated facts.
type HierarchicalMemory struct {
	Hot  []MemorySnapshot `json:"hot_memory"`
	Warm []MemorySnapshot `json:"warm_memory"`
	Cold []MemorySnapshot `json:"cold_memory"`
}

// MemorySnapshot is one summarized slice of turn history.
type MemorySnapshot struct {
	SnapshotID        string     `json:"snapshot_id"`
	TurnRange         TurnRange  `json:"turn_range"`
	Tier              MemoryTier `json:"tier"`
	ContentSummary    string     `json:"content_summary"`
	KeyInsights       []string   `json:"key_insights"`
	EvidenceIDs       []string   `json:"evidence_ids"`
	HypothesisUpdates []string   `json:"hypothesis_updates"`
	ConfidenceDelta   float64    `json:"confidence_delta"`
	TokenEstimate     int        `json:"token_count_estimate"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TurnRange is an inclusive span of turn numbers.
type TurnRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// OODAState tracks Observe-Orient-Decide-Act iterations.
type OODAState struct {
	CurrentIteration            int           `json:"current_iteration"`
	LastAnchoringCheckIteration int           `json:"last_anchoring_check_iteration"`
	PhaseIterations             map[Phase]int `json:"phase_iterations"`
}

// WorkingConclusion is the engine's current best understanding, regenerated
// every turn.
type WorkingConclusion struct {
	Statement                string   `json:"statement"`
	Confidence               float64  `json:"confidence"`
	Caveats                  []string `json:"caveats"`
	AlternativeHypothesesIDs []string `json:"alternative_hypotheses_ids"`
	LastUpdatedTurn          int      `json:"last_updated_turn"`
	LastConfidenceChangeTurn int      `json:"last_confidence_change_turn"`
	GeneratedAtTurn          int      `json:"generated_at_turn"`
}

// ProgressMetrics summarizes investigation velocity for the caller and the
// next prompt.
type ProgressMetrics struct {
	TurnsWithoutProgress  int      `json:"turns_without_progress"`
	Momentum              Momentum `json:"investigation_momentum"`
	EvidenceProvidedCount int      `json:"evidence_provided_count"`
	EvidencePendingCount  int      `json:"evidence_pending_count"`
	NextCriticalSteps     []string `json:"next_critical_steps"`
	IsDegradedMode        bool     `json:"is_degraded_mode"`
	GeneratedAtTurn       int      `json:"generated_at_turn"`
}

// DegradedModeData records entry into degraded mode after sustained lack of
// progress.
type DegradedModeData struct {
	EnteredAtTurn int      `json:"entered_at_turn"`
	Reason        string   `json:"reason"`
	RecoveryHints []string `json:"recovery_hints"`
}

// New constructs a fresh investigation state at phase INTAKE with every
// milestone present and false.
func New() *InvestigationState {
	milestones := make(map[Milestone]bool, len(AllMilestones()))
	for _, m := range AllMilestones() {
		milestones[m] = false
	}
	return &InvestigationState{
		SchemaVersion: SchemaVersion,
		CurrentPhase:  PhaseIntake,
		Hypotheses:    []Hypothesis{},
		Evidence:      []Evidence{},
		TurnHistory:   []TurnRecord{},
		Milestones:    milestones,
		Memory: HierarchicalMemory{
			Hot:  []MemorySnapshot{},
			Warm: []MemorySnapshot{},
			Cold: []MemorySnapshot{},
		},
	}
}

// MilestoneDone reports whether the named milestone has completed.
func (s *InvestigationState) MilestoneDone(m Milestone) bool {
	return s.Milestones[m]
}

// SetMilestone marks a milestone and reports whether this call changed it
// from false to true.
func (s *InvestigationState) SetMilestone(m Milestone) bool {
	if s.Milestones == nil {
		s.Milestones = make(map[Milestone]bool)
	}
	if s.Milestones[m] {
		return false
	}
	s.Milestones[m] = true
	return true
}

// LastTurnNumber returns the number of the most recent committed turn, or 0.
func (s *InvestigationState) LastTurnNumber() int {
	if len(s.TurnHistory) == 0 {
		return 0
	}
	return s.TurnHistory[len(s.TurnHistory)-1].TurnNumber
}

// NextTurnNumber returns the number the next committed turn must carry.
func (s *InvestigationState) NextTurnNumber() int {
	return s.LastTurnNumber() + 1
}

// FindHypothesis returns a pointer into the hypotheses slice, or nil.
func (s *InvestigationState) FindHypothesis(id string) *Hypothesis {
	for i := range s.Hypotheses {
		if s.Hypotheses[i].ID == id {
			return &s.Hypotheses[i]
		}
	}
	return nil
}

// FindEvidence returns a pointer into the evidence slice, or nil.
func (s *InvestigationState) FindEvidence(id string) *Evidence {
	for i := range s.Evidence {
		if s.Evidence[i].ID == id {
			return &s.Evidence[i]
		}
	}
	return nil
}

// HypothesesByStatus returns pointers to all hypotheses in the given status,
// in creation order.
func (s *InvestigationState) HypothesesByStatus(status HypothesisStatus) []*Hypothesis {
	var out []*Hypothesis
	for i := range s.Hypotheses {
		if s.Hypotheses[i].Status == status {
			out = append(out, &s.Hypotheses[i])
		}
	}
	return out
}

// NextHypothesisID mints the next sequential hypothesis id (hyp-001, …).
// Ids are deterministic so identical inputs replay to identical states.
func (s *InvestigationState) NextHypothesisID() string {
	return fmt.Sprintf("hyp-%03d", nextSeq("hyp-", hypothesisIDs(s)))
}

// NextEvidenceID mints the next sequential evidence id (ev-001, …).
func (s *InvestigationState) NextEvidenceID() string {
	return fmt.Sprintf("ev-%03d", nextSeq("ev-", evidenceIDs(s)))
}

func hypothesisIDs(s *InvestigationState) []string {
	ids := make([]string, len(s.Hypotheses))
	for i, h := range s.Hypotheses {
		ids[i] = h.ID
	}
	return ids
}

func evidenceIDs(s *InvestigationState) []string {
	ids := make([]string, len(s.Evidence))
	for i, e := range s.Evidence {
		ids[i] = e.ID
	}
	return ids
}

// nextSeq returns max(numeric suffix)+1 over ids carrying the prefix.
// Scanning (rather than len+1) stays collision-free even if a future
// schema version compacts the slices.
func nextSeq(prefix string, ids []string) int {
	high := 0
	for _, id := range ids {
		var n int
		if _, err := fmt.Sscanf(id, prefix+"%d", &n); err == nil && n > high {
			high = n
		}
	}
	return high + 1
}

// AddToSet appends v to set if not already present, preserving order.
func AddToSet(set []string, v string) []string {
	for _, existing := range set {
		if existing == v {
			return set
		}
	}
	return append(set, v)
}

// LatestConfidence returns the trajectory's last recorded confidence, or the
// current confidence if the trajectory is empty.
func (h *Hypothesis) LatestConfidence() float64 {
	if len(h.ConfidenceTrajectory) == 0 {
		return h.Confidence
	}
	return h.ConfidenceTrajectory[len(h.ConfidenceTrajectory)-1].Confidence
}

// RecordConfidence appends a trajectory point for the given turn, replacing
// an existing point for the same turn so trajectories stay strictly
// monotonic in turn number.
func (h *Hypothesis) RecordConfidence(turn int, confidence float64) {
	if n := len(h.ConfidenceTrajectory); n > 0 && h.ConfidenceTrajectory[n-1].Turn == turn {
		h.ConfidenceTrajectory[n-1].Confidence = confidence
		return
	}
	h.ConfidenceTrajectory = append(h.ConfidenceTrajectory, ConfidencePoint{Turn: turn, Confidence: confidence})
}
